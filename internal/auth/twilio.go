package auth

import (
	"net/http"

	twclient "github.com/twilio/twilio-go/client"
	"go.uber.org/zap"
)

// TwilioSignature rejects provider callbacks whose X-Twilio-Signature does not
// match the request URL and form body. publicURL, when set, replaces the
// scheme and host seen by this process, which differ behind a proxy.
func TwilioSignature(authToken, publicURL string, log *zap.Logger) func(http.Handler) http.Handler {
	validator := twclient.NewRequestValidator(authToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad form", http.StatusBadRequest)
				return
			}
			params := make(map[string]string, len(r.PostForm))
			for k, vs := range r.PostForm {
				if len(vs) > 0 {
					params[k] = vs[0]
				}
			}
			url := callbackURL(r, publicURL)
			if !validator.Validate(url, params, r.Header.Get("X-Twilio-Signature")) {
				log.Warn("twilio signature rejected",
					zap.String("url", url),
					zap.String("call_sid", r.PostForm.Get("CallSid")),
				)
				http.Error(w, "invalid signature", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callbackURL(r *http.Request, publicURL string) string {
	if publicURL != "" {
		return publicURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
