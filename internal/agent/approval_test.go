package agent

import "testing"

func TestCheckApprovalCommandClassification(t *testing.T) {
	cases := []struct {
		name    string
		policy  ApprovalPolicy
		command string
		want    ApprovalDecision
	}{
		{"on-request safe", PolicyOnRequest, "ls -la", ApprovalApproved},
		{"on-request dangerous", PolicyOnRequest, "rm -rf /", ApprovalRejected},
		{"on-request unknown", PolicyOnRequest, "make build", ApprovalNeedsConfirmation},
		{"yolo dangerous still blocked", PolicyYolo, "rm -rf /", ApprovalRejected},
		{"yolo unknown", PolicyYolo, "make build", ApprovalApproved},
		{"never safe", PolicyNever, "cat x", ApprovalApproved},
		{"never unknown", PolicyNever, "make", ApprovalRejected},
		{"auto unknown", PolicyAuto, "make build", ApprovalApproved},
		{"on-failure unknown", PolicyOnFailure, "make build", ApprovalApproved},
		{"auto-edit safe", PolicyAutoEdit, "git status", ApprovalApproved},
		{"auto-edit unknown", PolicyAutoEdit, "make build", ApprovalNeedsConfirmation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checker := NewApprovalChecker(tc.policy)
			decision, reason := checker.CheckApproval(ApprovalContext{
				ToolName:   "shell",
				IsMutating: true,
				Command:    tc.command,
				Cwd:        "/home/u",
			})
			if decision != tc.want {
				t.Errorf("decision = %s (%s), want %s", decision, reason, tc.want)
			}
		})
	}
}

func TestCheckApprovalNonMutatingAlwaysApproved(t *testing.T) {
	for _, policy := range []ApprovalPolicy{PolicyOnRequest, PolicyNever, PolicyYolo} {
		checker := NewApprovalChecker(policy)
		decision, _ := checker.CheckApproval(ApprovalContext{ToolName: "read", IsMutating: false})
		if decision != ApprovalApproved {
			t.Errorf("policy %s: non-mutating decision = %s", policy, decision)
		}
	}
}

func TestCheckApprovalPathEscapeElevates(t *testing.T) {
	checker := NewApprovalChecker(PolicyAutoEdit)
	decision, _ := checker.CheckApproval(ApprovalContext{
		ToolName:      "write",
		IsMutating:    true,
		AffectedPaths: []string{"/tmp/foo"},
		Cwd:           "/home/u",
	})
	if decision != ApprovalNeedsConfirmation {
		t.Errorf("decision = %s, want needs_confirmation for path escaping cwd", decision)
	}

	decision, _ = checker.CheckApproval(ApprovalContext{
		ToolName:      "write",
		IsMutating:    true,
		AffectedPaths: []string{"/home/u/project/file.go"},
		Cwd:           "/home/u",
	})
	if decision != ApprovalApproved {
		t.Errorf("decision = %s, want approved for path under cwd", decision)
	}
}

func TestCheckApprovalDangerousFlag(t *testing.T) {
	checker := NewApprovalChecker(PolicyAuto)
	decision, _ := checker.CheckApproval(ApprovalContext{
		ToolName:    "deploy",
		IsMutating:  true,
		IsDangerous: true,
	})
	if decision != ApprovalNeedsConfirmation {
		t.Errorf("decision = %s, want needs_confirmation for dangerous flag", decision)
	}

	yolo := NewApprovalChecker(PolicyYolo)
	decision, _ = yolo.CheckApproval(ApprovalContext{
		ToolName:    "deploy",
		IsMutating:  true,
		IsDangerous: true,
	})
	if decision != ApprovalApproved {
		t.Errorf("decision = %s, want approved under yolo", decision)
	}
}

func TestCheckApprovalIsDeterministic(t *testing.T) {
	checker := NewApprovalChecker(PolicyOnRequest)
	ctx := ApprovalContext{ToolName: "shell", IsMutating: true, Command: "make build", Cwd: "/home/u"}
	first, _ := checker.CheckApproval(ctx)
	for i := 0; i < 10; i++ {
		if decision, _ := checker.CheckApproval(ctx); decision != first {
			t.Fatalf("decision changed across identical inputs: %s vs %s", decision, first)
		}
	}
}
