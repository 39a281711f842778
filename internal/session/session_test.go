package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_BeginGetClear(t *testing.T) {
	store := NewStore()

	// No state before Begin
	_, ok := store.Get(100)
	assert.False(t, ok)
	assert.False(t, store.Active(100))

	store.Begin(100, FlowRegistration, StepFirstName)
	st, ok := store.Get(100)
	require.True(t, ok)
	assert.Equal(t, FlowRegistration, st.Flow)
	assert.Equal(t, StepFirstName, st.Step)
	assert.True(t, store.Active(100))

	store.Clear(100)
	_, ok = store.Get(100)
	assert.False(t, ok)
	assert.False(t, store.Active(100))
}

func TestStore_BeginDiscardsPreviousFlow(t *testing.T) {
	store := NewStore()

	store.Begin(100, FlowBooking, StepDate)
	st, _ := store.Get(100)
	st.Date = "25.12.2024"
	store.Put(100, st)

	// Starting a new flow throws away the half-collected booking
	store.Begin(100, FlowRedemption, StepAmount)
	st, ok := store.Get(100)
	require.True(t, ok)
	assert.Equal(t, FlowRedemption, st.Flow)
	assert.Equal(t, StepAmount, st.Step)
	assert.Empty(t, st.Date)
}

func TestStore_PerUserIsolation(t *testing.T) {
	store := NewStore()

	store.Begin(100, FlowRegistration, StepFirstName)
	store.Begin(200, FlowBooking, StepDate)

	st100, _ := store.Get(100)
	st100.FirstName = "Иван"
	store.Put(100, st100)

	// User 200's state is untouched
	st200, ok := store.Get(200)
	require.True(t, ok)
	assert.Equal(t, FlowBooking, st200.Flow)
	assert.Empty(t, st200.FirstName)

	// Clearing one user never touches the other
	store.Clear(100)
	assert.False(t, store.Active(100))
	assert.True(t, store.Active(200))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Begin(100, FlowBooking, StepDate)

	st, _ := store.Get(100)
	st.Date = "01.01.2025"

	// Mutating the copy does not write through
	stored, _ := store.Get(100)
	assert.Empty(t, stored.Date)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			store.Begin(userID, FlowRegistration, StepFirstName)
			st, _ := store.Get(userID)
			st.FirstName = "test"
			store.Put(userID, st)
			store.Clear(userID)
		}(int64(i))
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		assert.False(t, store.Active(int64(i)))
	}
}
