package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"mintledger/pkg/domain"
	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

type recordingAudit struct{ events []audit.Event }

func (r *recordingAudit) Emit(_ context.Context, e audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := domain.Address{0x07}

	tests := []struct {
		name       string
		header     string
		validator  stubValidator
		wantStatus int
		wantAudit  int
	}{
		{"valid token", "Bearer good", stubValidator{claims: &JWTClaims{Sender: sender, APIVersion: domain.APIVersionV1}}, http.StatusOK, 0},
		{"missing header", "", stubValidator{}, http.StatusUnauthorized, 1},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized, 1},
		{"invalid token", "Bearer bad", stubValidator{err: errors.New("invalid")}, http.StatusUnauthorized, 1},
		{"zero sender", "Bearer odd", stubValidator{claims: &JWTClaims{}}, http.StatusUnauthorized, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingAudit{}
			var got domain.Address
			h := RequireAuth(tt.validator, logger, WithAuditPublisher(rec))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = requestcontext.Sender(r.Context())
			}))
			r := httptest.NewRequest(http.MethodPost, "/v1/factories", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Len(t, rec.events, tt.wantAudit)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, sender, got)
			} else {
				assert.Equal(t, string(audit.EventAuthFailed), rec.events[0].Action)
			}
		})
	}
}
