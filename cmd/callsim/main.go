// callsim drives a simulated phone call against a running receptionist by
// posting the same form callbacks the voice provider would.
package main

import (
	"bufio"
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type reply struct {
	Speech []string
	Action string
	Hangup bool
}

func main() {
	base := flag.String("url", "http://localhost:8080", "receptionist base URL")
	grpcAddr := flag.String("grpc", "", "gRPC health address to check before dialing (e.g. :9090)")
	from := flag.String("from", "+18435550199", "caller number")
	script := flag.String("say", "", "utterances separated by '|'; reads stdin lines when empty")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	flag.Parse()

	if *grpcAddr != "" {
		if err := checkHealth(*grpcAddr, *timeout); err != nil {
			log.Fatalf("health: %v", err)
		}
	}

	callSid := "CA" + strings.ReplaceAll(uuid.NewString(), "-", "")
	httpc := &http.Client{Timeout: *timeout}
	post := func(path string, form url.Values) reply {
		form.Set("CallSid", callSid)
		form.Set("From", *from)
		resp, err := httpc.PostForm(strings.TrimRight(*base, "/")+path, form)
		if err != nil {
			log.Fatalf("post %s: %v", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			b, _ := io.ReadAll(resp.Body)
			log.Fatalf("post %s: %s: %s", path, resp.Status, string(b))
		}
		if resp.StatusCode == http.StatusNoContent {
			return reply{}
		}
		r, err := parseTwiML(resp.Body)
		if err != nil {
			log.Fatalf("parse %s: %v", path, err)
		}
		return r
	}

	fmt.Printf("=== Call %s from %s ===\n", callSid, *from)
	r := post("/voice/outbound/intro", url.Values{})
	printReply(r)

	next := utterances(*script)
	for !r.Hangup {
		text, ok := next()
		if !ok {
			break
		}
		fmt.Printf("caller> %s\n", text)
		path := r.Action
		if path == "" {
			path = "/voice/outbound/process"
		}
		if u, err := url.Parse(path); err == nil {
			path = u.Path
		}
		r = post(path, url.Values{"SpeechResult": {text}})
		printReply(r)
	}

	post("/voice/outbound/status", url.Values{"CallStatus": {"completed"}})
	fmt.Println("=== call completed ===")
}

func checkHealth(addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	fmt.Printf("[health] %s\n", resp.GetStatus())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("receptionist not serving")
	}
	return nil
}

func utterances(script string) func() (string, bool) {
	if script != "" {
		parts := strings.Split(script, "|")
		return func() (string, bool) {
			if len(parts) == 0 {
				return "", false
			}
			p := strings.TrimSpace(parts[0])
			parts = parts[1:]
			return p, true
		}
	}
	sc := bufio.NewScanner(os.Stdin)
	return func() (string, bool) {
		fmt.Print("> ")
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}
}

// parseTwiML collects spoken text, the gather action and a hangup marker.
func parseTwiML(r io.Reader) (reply, error) {
	var out reply
	dec := xml.NewDecoder(r)
	inSay := 0
	var buf strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Say":
				inSay++
				buf.Reset()
			case "Gather":
				for _, a := range t.Attr {
					if a.Name.Local == "action" {
						out.Action = a.Value
					}
				}
			case "Hangup":
				out.Hangup = true
			}
		case xml.CharData:
			if inSay > 0 {
				buf.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "Say" {
				inSay--
				out.Speech = append(out.Speech, strings.TrimSpace(buf.String()))
			}
		}
	}
}

func printReply(r reply) {
	ts := time.Now().Format("15:04:05.000")
	for _, s := range r.Speech {
		fmt.Printf("[%s] chris> %s\n", ts, s)
	}
	if r.Hangup {
		fmt.Printf("[%s] <- hangup\n", ts)
	}
}
