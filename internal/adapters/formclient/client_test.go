package formclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

const searchPage = `<html><body>
<form id="mainform" method="post" action="search.aspx">
  <input type="hidden" name="__VIEWSTATE" value="vs-1">
  <input type="text" id="txtStockCode" name="txtStockCode" value="">
  <input type="text" id="txtShareholdingDate" name="txtShareholdingDate" value="2025/01/10">
  <input type="checkbox" name="chkAll">
  <select name="sortBy"><option value="shareholding" selected>Shares</option><option value="name">Name</option></select>
  <input type="submit" id="btnSearch" name="btnSearch" value="Search">
  <input type="submit" name="btnReset" value="Reset">
</form>
</body></html>`

func newTargetServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			_, _ = w.Write([]byte(searchPage))
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
			http.Error(w, "no session", http.StatusForbidden)
			return
		}
		got := r.PostForm
		assert.Equal(t, "vs-1", got.Get("__VIEWSTATE"))
		assert.Equal(t, "Search", got.Get("btnSearch"))
		assert.Empty(t, got.Get("btnReset"))
		assert.False(t, got.Has("chkAll"))
		assert.Equal(t, "shareholding", got.Get("sortBy"))
		_, _ = w.Write([]byte(`<html><table id="result"><tr><td>` +
			got.Get("txtStockCode") + "|" + got.Get("txtShareholdingDate") + `</td></tr></table></html>`))
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func shareholdingNav() model.NavigationSpec {
	return model.NavigationSpec{
		FormSelector:   "form#mainform",
		TargetInput:    "#txtStockCode",
		PeriodInput:    "#txtShareholdingDate",
		Submit:         "#btnSearch",
		ResultSelector: "#result",
	}
}

func TestSession_SubmitsParsedForm(t *testing.T) {
	srv := newTargetServer(t)
	ctx := context.Background()

	session, err := New(Options{Timeout: 5 * time.Second}).Open(ctx, shareholdingNav())
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Navigate(ctx, srv.URL+"/search.aspx"))
	require.NoError(t, session.FillField(ctx, "#txtStockCode", "00700"))
	require.NoError(t, session.FillField(ctx, "#txtShareholdingDate", "2025/01/09"))
	require.NoError(t, session.Submit(ctx))
	require.NoError(t, session.WaitForStable(ctx, time.Second))

	content, err := session.ReadContent(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "00700|2025/01/09")
}

func TestSession_Errors(t *testing.T) {
	srv := newTargetServer(t)
	ctx := context.Background()
	factory := New(Options{})

	tests := []struct {
		name string
		path string
		want apperrors.ErrorCode
	}{
		{"rate limited", "/busy", apperrors.ErrCodeRateLimitExceeded},
		{"server error", "/broken", apperrors.ErrCodeTransientNetwork},
		{"not found", "/missing", apperrors.ErrCodeNavigationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := factory.Open(ctx, shareholdingNav())
			require.NoError(t, err)
			err = session.Navigate(ctx, srv.URL+tt.path)
			assert.Equal(t, tt.want, apperrors.GetCode(err))
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		session, err := factory.Open(ctx, shareholdingNav())
		require.NoError(t, err)
		require.NoError(t, session.Navigate(ctx, srv.URL+"/search.aspx"))
		err = session.FillField(ctx, "#nope", "x")
		assert.Equal(t, apperrors.ErrCodeNavigationError, apperrors.GetCode(err))
	})

	t.Run("read before navigate", func(t *testing.T) {
		session, err := factory.Open(ctx, shareholdingNav())
		require.NoError(t, err)
		_, err = session.ReadContent(ctx)
		assert.Equal(t, apperrors.ErrCodeNavigationError, apperrors.GetCode(err))
	})

	t.Run("connection refused is transient", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		addr := dead.URL
		dead.Close()
		session, err := factory.Open(ctx, shareholdingNav())
		require.NoError(t, err)
		err = session.Navigate(ctx, addr)
		assert.True(t, apperrors.IsRetryable(err), "got %v", err)
	})
}

func TestParseForm_GetMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/find" {
			_, _ = w.Write([]byte("q=" + r.URL.Query().Get("q") + " page=" + r.URL.Query().Get("page")))
			return
		}
		_, _ = w.Write([]byte(`<form method="get" action="/find"><input name="q"><input type="hidden" name="page" value="1"><button id="go">Go</button></form>`))
	}))
	defer srv.Close()
	ctx := context.Background()

	nav := model.NavigationSpec{TargetInput: "input[name=q]", Submit: "#go"}
	session, err := New(Options{}).Open(ctx, nav)
	require.NoError(t, err)
	require.NoError(t, session.Navigate(ctx, srv.URL))
	require.NoError(t, session.FillField(ctx, nav.TargetInput, "00700"))
	require.NoError(t, session.Submit(ctx))
	content, err := session.ReadContent(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content, "q=00700 page=1"), content)
}
