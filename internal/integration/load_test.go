package integration

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"classhub/pkg/types"
)

// TestClassroomScaleLoad puts a full class in one writing session and has
// every student push an edit; each edit must reach every other student.
func TestClassroomScaleLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}
	const students = 30

	application := StartTestApplication(t, nil)
	clients := make([]*TestClient, students)
	for i := range clients {
		clients[i] = Dial(t, application)
		clients[i].Send(types.MessageTypeJoinSession, types.Payload{
			"sessionId":   "essay",
			"sessionType": "writing",
			"studentId":   fmt.Sprintf("student-%02d", i),
		})
		clients[i].Expect(types.MessageTypeSessionJoined)
	}

	start := time.Now()
	for i, c := range clients {
		c.Send(types.MessageTypeWritingUpdate, types.Payload{
			"collaborative": true,
			"content":       fmt.Sprintf("paragraph %d", i),
		})
	}

	var wg sync.WaitGroup
	errs := make(chan error, students)
	for _, c := range clients {
		wg.Add(1)
		go func(c *TestClient) {
			defer wg.Done()
			seen := map[string]bool{}
			for len(seen) < students-1 {
				env, err := c.Next()
				if err != nil {
					errs <- fmt.Errorf("%s saw %d/%d edits: %w", c.ID, len(seen), students-1, err)
					return
				}
				if env.Type != types.MessageTypeDocumentUpdated {
					continue
				}
				author, _ := env.Data["authorId"].(string)
				if author == c.ID {
					errs <- fmt.Errorf("%s received its own edit", c.ID)
					return
				}
				seen[author] = true
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	t.Logf("fanned out %d edits to %d students in %v", students, students-1, time.Since(start))

	stats, err := application.Hub().Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ConnectionsByType["writing"] != students || stats.DeliveryFailures != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}
