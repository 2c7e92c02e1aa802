package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/core"
	"github.com/joseph-ayodele/labscan/internal/core/fields"
	"github.com/joseph-ayodele/labscan/internal/core/record"
)

func TestPredict(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		status  int
		want    core.Prediction
		wantErr error
	}{
		{"gallstone", `{"prediction":0,"probabilities":[0.8123,0.1877]}`, 200, core.Prediction{Label: LabelGallstone, Probability: 81.23}, nil},
		{"no gallstone", `{"prediction":1,"probabilities":[0.35,0.65]}`, 200, core.Prediction{Label: LabelNoGallstone, Probability: 65}, nil},
		{"class out of range", `{"prediction":2,"probabilities":[0.5,0.5]}`, 200, core.Prediction{}, ErrBadReply},
		{"one probability", `{"prediction":0,"probabilities":[0.5]}`, 200, core.Prediction{}, ErrBadReply},
		{"probability above one", `{"prediction":0,"probabilities":[1.5,0.1]}`, 200, core.Prediction{}, ErrBadReply},
		{"not json", `oops`, 200, core.Prediction{}, ErrBadReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got record.Frame
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Content-Type") != "application/json" || r.Header.Get("Authorization") != "Bearer k" {
					t.Errorf("headers = %v", r.Header)
				}
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Errorf("decode request: %v", err)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer srv.Close()

			c, err := NewHTTPClient(Config{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer k"}}, nil)
			if err != nil {
				t.Fatal(err)
			}
			rec := record.FromRaw(fields.RawMap{constants.Age: "45"})
			pred, err := c.Predict(context.Background(), rec.Frame())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if pred != tt.want {
				t.Errorf("pred = %+v, want %+v", pred, tt.want)
			}
			if len(got.Columns) != len(constants.ModelFeatures()) || got.Data[0][0] != 45 {
				t.Errorf("request frame = %+v", got)
			}
		})
	}
}

func TestPredictForwardsRequestID(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`{"prediction":1,"probabilities":[0.4,0.6]}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(Config{URL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}
	frame := record.FromRaw(fields.RawMap{}).Frame()

	ctx := common.WithRequestID(context.Background(), "trace-123")
	if _, err := c.Predict(ctx, frame); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if seen != "trace-123" {
		t.Errorf("X-Request-ID = %q, want trace-123", seen)
	}

	if _, err := c.Predict(context.Background(), frame); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if seen == "" || seen == "trace-123" {
		t.Errorf("X-Request-ID without context = %q, want a fresh id", seen)
	}
}

func TestPredictServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c, _ := NewHTTPClient(Config{URL: srv.URL}, nil)
	if _, err := c.Predict(context.Background(), record.Frame{}); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestNewHTTPClientRequiresURL(t *testing.T) {
	if _, err := NewHTTPClient(Config{}, nil); err == nil {
		t.Fatal("expected error")
	}
}
