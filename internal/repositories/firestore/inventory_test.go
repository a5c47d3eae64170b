package firestore

import "testing"

func TestPlanSettle(t *testing.T) {
	tests := []struct {
		name    string
		state   string
		found   bool
		target  string
		apply   bool
		restock bool
	}{
		{
			name:    "release of a held reservation restocks",
			state:   reservationStateHeld,
			found:   true,
			target:  reservationStateReleased,
			apply:   true,
			restock: true,
		},
		{
			name:   "finalize of a held reservation keeps stock decremented",
			state:  reservationStateHeld,
			found:  true,
			target: reservationStateCommitted,
			apply:  true,
		},
		{
			name:   "second release is a no-op",
			state:  reservationStateReleased,
			found:  true,
			target: reservationStateReleased,
		},
		{
			name:   "release after finalize does not restock a paid order",
			state:  reservationStateCommitted,
			found:  true,
			target: reservationStateReleased,
		},
		{
			name:   "finalize after release does not resurrect the hold",
			state:  reservationStateReleased,
			found:  true,
			target: reservationStateCommitted,
		},
		{
			name:   "missing reservation is a no-op",
			found:  false,
			target: reservationStateReleased,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planSettle(tt.state, tt.found, tt.target)
			if plan.apply != tt.apply {
				t.Fatalf("apply = %v, want %v", plan.apply, tt.apply)
			}
			if plan.restock != tt.restock {
				t.Fatalf("restock = %v, want %v", plan.restock, tt.restock)
			}
		})
	}
}
