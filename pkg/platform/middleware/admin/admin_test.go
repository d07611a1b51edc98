package admin

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"mintledger/pkg/testutil"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireAdminToken("s3cret", logger)(ok)

	t.Run("missing token", func(t *testing.T) {
		rr := testutil.DoRequest(h, testutil.NewJSONRequest(t, http.MethodPost, "/fund", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("wrong token", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/fund", nil)
		req.Header.Set("X-Admin-Token", "guess")
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("matching token", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/fund", nil)
		req.Header.Set("X-Admin-Token", "s3cret")
		rr := testutil.DoRequest(h, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}
