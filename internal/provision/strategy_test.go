package provision

import "testing"

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		instanceType string
		serverID     string
		want         Strategy
	}{
		{"e2-standard-4", "", StrategyCloudManaged},
		{"n1-highmem-8", "", StrategyCloudManaged},
		{"a2-highgpu-1g", "", StrategyCloudManaged},
		{"t3.medium", "", StrategyEdge},
		{"t2.micro", "", StrategyEdge},
		// burstable prefix wins over the server preference
		{"t3.medium", CloudManagedServerID, StrategyEdge},
		{"m5.large", CloudManagedServerID, StrategyCloudManaged},
		{"m5.large", "", StrategyEdge},
		{"m5.large", "some-other-server", StrategyEdge},
		{"", "", StrategyEdge},
		{"", CloudManagedServerID, StrategyCloudManaged},
	}
	for _, tt := range tests {
		if got := SelectStrategy(tt.instanceType, tt.serverID); got != tt.want {
			t.Errorf("SelectStrategy(%q, %q) = %q, want %q", tt.instanceType, tt.serverID, got, tt.want)
		}
	}
}

func TestSelectStrategyDeterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		if got := SelectStrategy("e2-standard-4", ""); got != StrategyCloudManaged {
			t.Fatalf("run %d: got %q", i, got)
		}
	}
}
