package core

import (
	"fmt"
	"sort"
)

// ReplayState is the person state reconstructed from its versions.
type ReplayState struct {
	Fields    PersonFields
	Version   int
	IsDeleted bool
}

// Replay folds versions in version-number order. It fails if the numbers
// are not gap-free from 1, if the first change is not an INSERT, or if a
// later INSERT appears.
func Replay(versions []PersonVersion) (ReplayState, error) {
	if len(versions) == 0 {
		return ReplayState{}, fmt.Errorf("no versions")
	}

	ordered := make([]PersonVersion, len(versions))
	copy(ordered, versions)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].VersionNumber < ordered[j].VersionNumber
	})

	var st ReplayState
	for i, v := range ordered {
		if v.VersionNumber != i+1 {
			return ReplayState{}, fmt.Errorf("version gap: expected %d, found %d", i+1, v.VersionNumber)
		}
		if (i == 0) != (v.ChangeType == ChangeInsert) {
			return ReplayState{}, fmt.Errorf("version %d: unexpected %s", v.VersionNumber, v.ChangeType)
		}
		st.Fields = v.Snapshot.Clone()
		st.Version = v.VersionNumber
		st.IsDeleted = v.ChangeType == ChangeDelete
	}
	return st, nil
}

// HistoryReport is the result of checking a person against its history.
type HistoryReport struct {
	PersonID   string   `json:"personId"`
	ExternalID string   `json:"externalId"`
	Versions   int      `json:"versions"`
	Consistent bool     `json:"consistent"`
	Problems   []string `json:"problems,omitempty"`
}

// VerifyHistory replays versions and compares the result with person.
func VerifyHistory(person Person, versions []PersonVersion) HistoryReport {
	report := HistoryReport{
		PersonID:   person.ID.String(),
		ExternalID: person.ExternalID,
		Versions:   len(versions),
	}

	st, err := Replay(versions)
	if err != nil {
		report.Problems = append(report.Problems, err.Error())
		return report
	}
	if st.Version != person.CurrentVersion {
		report.Problems = append(report.Problems,
			fmt.Sprintf("current version is %d, history ends at %d", person.CurrentVersion, st.Version))
	}
	if st.IsDeleted != person.IsDeleted {
		report.Problems = append(report.Problems,
			fmt.Sprintf("deleted flag is %t, history says %t", person.IsDeleted, st.IsDeleted))
	}
	for _, name := range person.Fields.Changes(st.Fields) {
		report.Problems = append(report.Problems, "field differs from history: "+name)
	}
	report.Consistent = len(report.Problems) == 0
	return report
}
