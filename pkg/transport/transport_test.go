package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeLink struct {
	bw   Bandwidth
	cost float64
}

func (f *fakeLink) Connect() error { return nil }
func (f *fakeLink) Bandwidth() Bandwidth { return f.bw }
func (f *fakeLink) CostPerKB() float64 { return f.cost }
func (f *fakeLink) SignalStrength() int { return 50 }

func TestPreferDelta(t *testing.T) {
	tests := []struct {
		name string
		link Link
		want bool
	}{
		{name: "nil link", link: nil, want: false},
		{name: "high bandwidth free", link: &fakeLink{bw: BandwidthHigh}, want: false},
		{name: "medium bandwidth free", link: &fakeLink{bw: BandwidthMedium}, want: false},
		{name: "low bandwidth", link: &fakeLink{bw: BandwidthLow}, want: true},
		{name: "very low bandwidth", link: &fakeLink{bw: BandwidthVeryLow}, want: true},
		{name: "fast but metered", link: &fakeLink{bw: BandwidthHigh, cost: 0.002}, want: true},
		{name: "loopback", link: Loopback{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PreferDelta(tt.link))
		})
	}
}
