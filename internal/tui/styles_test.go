package tui

import "testing"

func TestTopicStyleRendersEveryKnownAndUnknownTopic(t *testing.T) {
	for _, topic := range []string{"claim.lost", "task.failed", "pr.event", "polling.tick", "gateway.decision", "something.unrecognized"} {
		if rendered := topicStyle(topic).Render(topic); rendered == "" {
			t.Fatalf("expected a non-empty rendered badge for topic %q", topic)
		}
	}
}

func TestTopicStyleFallsBackToDefaultForUnknownTopics(t *testing.T) {
	if topicStyle("something.unrecognized").Render("x") != topicStyle("pr.event").Render("x") {
		t.Fatalf("expected unrecognized topics to share pr.event's default blue styling")
	}
}

func TestMax(t *testing.T) {
	if max(3, 5) != 5 {
		t.Fatalf("expected max(3, 5) == 5")
	}
	if max(5, 3) != 5 {
		t.Fatalf("expected max(5, 3) == 5")
	}
	if max(4, 4) != 4 {
		t.Fatalf("expected max(4, 4) == 4")
	}
}
