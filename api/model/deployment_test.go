package model

import (
	"encoding/json"
	"testing"
)

func TestPhases(t *testing.T) {
	phases := []Phase{
		PhaseValidating, PhaseFetching, PhaseBuilding, PhaseListing,
		PhaseClearing, PhaseUploading, PhaseFinalizing, PhaseDone, PhaseFailed,
	}

	seen := map[Phase]bool{}
	for _, p := range phases {
		if seen[p] {
			t.Errorf("duplicate phase: %q", p)
		}
		seen[p] = true
		if string(p) == "" {
			t.Error("empty phase string")
		}
	}
}

func TestResultJSON(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{
			"success",
			Succeeded("https://site.s3-website-eu-west-1.amazonaws.com/"),
			`{"success":true,"url":"https://site.s3-website-eu-west-1.amazonaws.com/","message":"Deployment completed successfully"}`,
		},
		{"failure", Failed("Invalid repository name"), `{"success":false,"error":"Invalid repository name"}`},
		{"empty failure", Failed(""), `{"success":false,"error":"Deployment failed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.result)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}
		})
	}
}

func TestDeployRequestHidesCredential(t *testing.T) {
	req := DeployRequest{CallerID: "u1", Credential: "gho_secret", Repo: Repo{Owner: "a", Name: "b"}}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	json.Unmarshal(data, &m)
	if _, ok := m["credential"]; ok {
		t.Errorf("credential leaked into JSON: %s", data)
	}
	if req.Repo.String() != "a/b" {
		t.Errorf("Repo.String() = %q", req.Repo.String())
	}
}

func TestArtifactSetKeys(t *testing.T) {
	set := ArtifactSet{"index.html": "/w/index.html", "css/app.css": "/w/css/app.css"}
	keys := set.Keys()
	if len(keys) != 2 || keys[0] != "css/app.css" || keys[1] != "index.html" {
		t.Errorf("Keys() = %v", keys)
	}
}
