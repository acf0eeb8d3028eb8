package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/resort-relay/internal/relay"
)

func TestHeuristicEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		threshold int
		resp      relay.FetchResponse
		want      string
	}{
		{
			name: "empty body",
			resp: relay.FetchResponse{StatusCode: 200, Body: []byte("  \n")},
			want: ReasonEmptyBody,
		},
		{
			name:      "script shell",
			threshold: 1000,
			resp:      relay.FetchResponse{StatusCode: 200, Body: []byte(`<html><script>var a=1;</script><p>t</p></html>`)},
			want:      ReasonScriptShell,
		},
		{
			name:      "unterminated script",
			threshold: 1000,
			resp:      relay.FetchResponse{StatusCode: 200, Body: []byte(`<p>x</p><SCRIPT src="app.js">`)},
			want:      ReasonScriptShell,
		},
		{
			name: "client marker",
			resp: relay.FetchResponse{StatusCode: 200, Body: []byte(`<div id="__next"></div>`)},
			want: ReasonClientMarker,
		},
		{
			name: "plain article",
			resp: relay.FetchResponse{StatusCode: 200, Body: []byte(`<table class="infobox"></table><p>Vail Ski Resort is a ski area.</p>`)},
			want: ReasonNone,
		},
		{
			name: "missing article",
			resp: relay.FetchResponse{StatusCode: 404, Body: nil},
			want: ReasonNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHeuristic(tt.threshold)
			require.Equal(t, tt.want, h.Evaluate(tt.resp))
			require.Equal(t, tt.want != ReasonNone, h.ShouldPromote(tt.resp))
		})
	}
}

func TestNewHeuristicDefaultsThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultBodyThreshold, NewHeuristic(0).BodyThreshold)
	require.Equal(t, 10, NewHeuristic(10).BodyThreshold)
}
