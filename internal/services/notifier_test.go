package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicDeliversInSubscriptionOrder(t *testing.T) {
	n := NewNotifier()
	var got []string

	n.Loans.Subscribe(func(e LoanChanged) { got = append(got, "first") })
	n.Loans.Subscribe(func(e LoanChanged) { got = append(got, "second") })
	n.Items.Subscribe(func(e ItemsChanged) { got = append(got, "items") })

	n.Loans.Publish(LoanChanged{OwnerID: 1, EventID: 2})

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestTopicPublishWithoutSubscribers(t *testing.T) {
	n := NewNotifier()
	assert.NotPanics(t, func() {
		n.ProfileImages.Publish(ProfileImageChanged{UserID: 1, ImageKey: "avatars/1/a.png"})
	})
}

func TestTopicSurvivesPanickingSubscriber(t *testing.T) {
	var topic Topic[ItemsChanged]
	delivered := 0

	topic.Subscribe(func(ItemsChanged) { panic("boom") })
	topic.Subscribe(func(ItemsChanged) { delivered++ })

	assert.NotPanics(t, func() { topic.Publish(ItemsChanged{OwnerID: 1}) })
	assert.Equal(t, 1, delivered)
}

func TestTopicConcurrentPublish(t *testing.T) {
	var topic Topic[LoanChanged]
	var mu sync.Mutex
	count := 0
	topic.Subscribe(func(LoanChanged) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			topic.Publish(LoanChanged{EventID: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
}
