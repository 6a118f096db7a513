package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Side effects (email, push, dispatch) are best-effort and never roll back
// the mutation that triggered them, so a dropped one is invisible unless
// counted.
var droppedSideEffects = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ekrisshak_side_effect_drops_total",
	Help: "Side effects that failed and were dropped, by kind.",
}, []string{"kind"})

func CountDroppedEmail()    { droppedSideEffects.WithLabelValues("email").Inc() }
func CountDroppedPush()     { droppedSideEffects.WithLabelValues("push").Inc() }
func CountDroppedDispatch() { droppedSideEffects.WithLabelValues("dispatch").Inc() }
func CountDroppedCalendar() { droppedSideEffects.WithLabelValues("calendar").Inc() }
