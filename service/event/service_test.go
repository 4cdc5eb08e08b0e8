package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/service/messaging"
	"github.com/viant/warden/service/messaging/fs"
)

type notice struct {
	ID string `json:"id"`
}

func TestService_PublishListen(t *testing.T) {
	testCases := []struct {
		description string
		vendor      messaging.Vendor
		options     func(t *testing.T) []Option
	}{
		{
			description: "memory",
			vendor:      messaging.VendorMemory,
			options:     func(t *testing.T) []Option { return nil },
		},
		{
			description: "fs",
			vendor:      messaging.VendorFS,
			options: func(t *testing.T) []Option {
				base := t.TempDir()
				return []Option{WithNewFsQueueConfig(func(name string) fs.Config {
					config := fs.DefaultConfig()
					config.BaseURL = base + "/" + name
					config.PollInterval = 5 * time.Millisecond
					return config
				})}
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			service, err := New(testCase.vendor, testCase.options(t)...)
			require.NoError(t, err)
			defer service.Close()

			var mux sync.Mutex
			var topics []string
			received := make(chan struct{}, 2)
			require.NoError(t, SetListenerOf[notice](service, func(e *Event[notice]) {
				mux.Lock()
				topics = append(topics, e.Topic()+":"+e.Data.ID)
				mux.Unlock()
				received <- struct{}{}
			}))

			publisher, err := PublisherOf[notice](service)
			require.NoError(t, err)
			same, err := PublisherOf[notice](service)
			require.NoError(t, err)
			assert.Same(t, publisher, same)

			ctx := context.Background()
			require.NoError(t, publisher.Publish(ctx, NewEvent(&Context{Topic: "request.created"}, notice{ID: "1"})))
			require.NoError(t, publisher.Publish(ctx, NewEvent(&Context{Topic: "request.executed"}, notice{ID: "1"})))
			for i := 0; i < 2; i++ {
				select {
				case <-received:
				case <-time.After(5 * time.Second):
					t.Fatal("event not delivered")
				}
			}
			mux.Lock()
			defer mux.Unlock()
			assert.Equal(t, []string{"request.created:1", "request.executed:1"}, topics)
		})
	}
}

func TestNew_Vendor(t *testing.T) {
	_, err := New("kafka")
	assert.Error(t, err)
	_, err = New(messaging.VendorFS)
	assert.Error(t, err)
}

func TestListener_Stop(t *testing.T) {
	service, err := New(messaging.VendorMemory)
	require.NoError(t, err)
	require.NoError(t, SetListenerOf[notice](service, func(e *Event[notice]) {}))
	done := make(chan struct{})
	go func() {
		service.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}
