// Package httpx reúne helpers HTTP comuns aos serviços: respostas JSON,
// identificação do chamador e log de requisições.
package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// CallerHeader identifica o endereço de quem chama a API
const CallerHeader = "X-Caller"

// ErrorResponse é o corpo padrão de erro
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Code    int    `json:"code"`
}

// WriteJSON serializa e envia resposta JSON com o status informado
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError envia um ErrorResponse
func WriteError(w http.ResponseWriter, status int, kind, message string) {
	WriteErrorReason(w, status, kind, "", message)
}

// WriteErrorReason envia um ErrorResponse com o motivo detalhado da rejeição
func WriteErrorReason(w http.ResponseWriter, status int, kind, reason, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Kind:    kind,
		Reason:  reason,
		Code:    status,
	})
}

// DecodeJSON lê o corpo da requisição rejeitando campos desconhecidos
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// Logger registra cada requisição com zap
func Logger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
