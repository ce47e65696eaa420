package bhunaksha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/cadastral-crawler/internal/fetcher/colly"
)

var testPath = crawler.Path{State: "21", District: "1", Tehsil: "1", RI: "2"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second})
	return New(fetcher, Config{
		BaseURL: srv.URL + "/bhunaksha/",
		APIURL:  srv.URL + "/bhunaksha/ScalarDatahandler",
		Path:    testPath,
		Timeout: time.Second,
	}, zap.NewNop())
}

func TestProbePresent(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "5", q.Get("OP"))
		assert.Equal(t, "21", q.Get("state"))
		assert.Equal(t, "1,1,2,38,1,", q.Get("levels"))
		assert.Equal(t, "3", q.Get("plotno"))
		_, _ = w.Write([]byte(`{"has_data":"Y","xmax":10.5,"xmin":"9.5","ymin":1,"ymax":2,` +
			`"center_x":10,"center_y":"1.5","gisCode":"2101012038001"}`))
	})

	res := client.Probe(context.Background(), "38", "1", 3)
	require.Equal(t, crawler.OutcomePresent, res.Outcome)
	require.NoError(t, res.Err)
	require.True(t, res.Present())
	require.Equal(t, crawler.PlotRecord{
		PlotNo:  3,
		XMax:    10.5,
		XMin:    9.5,
		YMin:    1,
		YMax:    2,
		CenterX: 10,
		CenterY: 1.5,
		GISCode: "2101012038001",
	}, *res.Plot)
}

func TestProbeAbsent(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"has_data":"N"}`))
	})

	res := client.Probe(context.Background(), "38", "1", 4)
	require.Equal(t, crawler.OutcomeAbsent, res.Outcome)
	require.Nil(t, res.Plot)
	require.NoError(t, res.Err)
}

func TestProbeClassifiesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: crawler.ErrTransport,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>maintenance</html>`))
			},
			want: crawler.ErrParse,
		},
		{
			name: "missing coordinates",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"has_data":"Y","gisCode":"x01"}`))
			},
			want: crawler.ErrParse,
		},
		{
			name: "non numeric coordinate",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"has_data":"Y","xmax":"abc"}`))
			},
			want: crawler.ErrParse,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(3 * time.Second):
				}
				w.WriteHeader(http.StatusOK)
			},
			want: crawler.ErrTransport,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, tt.handler)
			res := client.Probe(context.Background(), "38", "1", 7)
			require.Equal(t, crawler.OutcomeError, res.Outcome)
			require.Nil(t, res.Plot)
			require.ErrorIs(t, res.Err, tt.want)
		})
	}
}

// TestProbeErrorContainment checks a failing lookup does not affect its neighbours.
func TestProbeErrorContainment(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{failPlot: "37"}
	client := New(fetcher, Config{APIURL: "http://remote/ScalarDatahandler", Path: testPath}, nil)

	var wg sync.WaitGroup
	results := make([]crawler.ProbeResult, 60)
	for i := range results {
		wg.Add(1)
		go func(plot int) {
			defer wg.Done()
			results[plot-1] = client.Probe(context.Background(), "38", "1", plot)
		}(i + 1)
	}
	wg.Wait()

	for _, res := range results {
		switch res.PlotNo {
		case 37:
			require.Equal(t, crawler.OutcomeError, res.Outcome)
			require.ErrorIs(t, res.Err, crawler.ErrTransport)
		case 10, 50:
			require.Equal(t, crawler.OutcomePresent, res.Outcome, "plot %d", res.PlotNo)
		default:
			require.Equal(t, crawler.OutcomeAbsent, res.Outcome, "plot %d", res.PlotNo)
		}
	}
}

type scriptedFetcher struct {
	failPlot string
}

func (s *scriptedFetcher) Fetch(_ context.Context, req collyfetcher.Request) (collyfetcher.Response, error) {
	plot := req.Query.Get("plotno")
	switch plot {
	case s.failPlot:
		return collyfetcher.Response{}, errors.New("connection reset by peer")
	case "10", "50":
		return collyfetcher.Response{StatusCode: http.StatusOK, Body: []byte(
			`{"has_data":"Y","xmax":1,"xmin":0,"ymin":0,"ymax":1,"center_x":0.5,"center_y":0.5,"gisCode":"g01"}`,
		)}, nil
	default:
		return collyfetcher.Response{StatusCode: http.StatusOK, Body: []byte(`{"has_data":"N"}`)}, nil
	}
}
