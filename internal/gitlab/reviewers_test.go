package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/pkg/models"
)

// pagedStatusServer serves two pages of commit statuses.
func pagedStatusServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if page := r.URL.Query().Get("page"); page == "" || page == "1" {
			w.Header().Set("X-Next-Page", "2")
			w.Header().Set("X-Total-Pages", "2")
			fmt.Fprint(w, `[{"name":"security/scan","status":"success"}]`)
			return
		}
		fmt.Fprint(w, `[{"name":"security/lint","status":"pending"}]`)
	}))
}

func newStatusClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(config.GitLab{
		URL:     baseURL,
		Token:   "tok",
		Project: "group/project",
		MR:      1,
	}, config.Bots{}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestCheckStatus_AggregatesAcrossPages(t *testing.T) {
	srv := pagedStatusServer(t)
	defer srv.Close()

	c := newStatusClient(t, srv.URL)
	reviewer := config.Reviewer{Name: "security", CheckPatterns: []string{"security/*"}}

	state, err := c.CheckStatus(context.Background(), "head-sha", reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewerPending, state, "the pending check on page two must be seen")
}

func TestCheckStatus_EveryPageWaitsOnLimiter(t *testing.T) {
	srv := pagedStatusServer(t)
	defer srv.Close()

	c := newStatusClient(t, srv.URL)
	// One token only: the second page has to wait for a refill that never
	// arrives within the deadline.
	c.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	reviewer := config.Reviewer{Name: "security", CheckPatterns: []string{"security/*"}}
	_, err := c.CheckStatus(ctx, "head-sha", reviewer)
	require.Error(t, err)
}
