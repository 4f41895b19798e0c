package merge

import (
	"sort"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/score"
)

// ReasonNormalizedName is stamped on keepers merged by name
const ReasonNormalizedName = "normalized_name"

// Group is a set of records sharing a grouping key
type Group struct {
	Key     string
	Records []*model.Intervention
}

// Decision is what merging one group does. Dry and live runs share it.
type Decision struct {
	Key           string         `json:"key"`
	KeeperID      string         `json:"keeper_id"`
	KeeperName    string         `json:"keeper_name"`
	DeletedIDs    []string       `json:"deleted_ids"`
	ChangedFields []string       `json:"changed_fields"`
	Scores        map[string]int `json:"scores"`

	merged     *model.Intervention
	duplicates []*model.Intervention
}

// Merged returns the keeper as it will be persisted
func (d *Decision) Merged() *model.Intervention {
	return d.merged.Clone()
}

// GroupByName buckets records by normalized name. Only keys with more than
// one record are returned, in key order. A record whose key is empty, such as
// a punctuation-only or non-Latin name, is never grouped.
func GroupByName(records []*model.Intervention) []Group {
	buckets := make(map[string][]*model.Intervention)
	for _, iv := range records {
		key := NormalizeName(iv.Name)
		if key == "" {
			continue
		}
		buckets[key] = append(buckets[key], iv)
	}

	groups := make([]Group, 0)
	for key, members := range buckets {
		if len(members) > 1 {
			groups = append(groups, Group{Key: key, Records: members})
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// Plan computes a decision for every duplicate group. It does not mutate
// its input.
func Plan(records []*model.Intervention, scorer *score.Scorer, now time.Time) []*Decision {
	groups := GroupByName(records)
	decisions := make([]*Decision, 0, len(groups))
	for _, g := range groups {
		decisions = append(decisions, planGroup(g, scorer, now))
	}
	return decisions
}

func planGroup(g Group, scorer *score.Scorer, now time.Time) *Decision {
	scores := make(map[string]int, len(g.Records))
	ordered := make([]*model.Intervention, len(g.Records))
	copy(ordered, g.Records)
	for _, iv := range ordered {
		scores[iv.ID] = scorer.Calculate(iv).Total
	}

	// Highest score wins; ties go to the oldest record, then the smallest id
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if scores[a.ID] != scores[b.ID] {
			return scores[a.ID] > scores[b.ID]
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	keeper := ordered[0].Clone()
	d := &Decision{
		Key:        g.Key,
		KeeperID:   keeper.ID,
		KeeperName: keeper.Name,
		Scores:     scores,
	}

	changed := make(map[string]bool)
	for _, dup := range ordered[1:] {
		for _, field := range mergeInto(keeper, dup) {
			changed[field] = true
		}
		d.DeletedIDs = append(d.DeletedIDs, dup.ID)
		d.duplicates = append(d.duplicates, dup)
		keeper.Metadata.MergedFrom = appendUnique(keeper.Metadata.MergedFrom, dup.ID)
	}

	stamp := now.UTC()
	keeper.Metadata.MergedAt = &stamp
	keeper.Metadata.MergeReason = ReasonNormalizedName
	keeper.UpdatedAt = stamp
	d.merged = keeper

	d.ChangedFields = make([]string, 0, len(changed))
	for _, field := range fieldOrder {
		if changed[field] {
			d.ChangedFields = append(d.ChangedFields, field)
		}
	}
	return d
}

var fieldOrder = []string{
	"description", "type", "geography", "target_cohort", "coordinates",
	"source_url", "operating_organization", "website", "contact_phone",
	"contact_email", "evidence_level", "source_documents",
}

// mergeInto folds dup into keeper field by field and returns the fields it changed
func mergeInto(keeper, dup *model.Intervention) []string {
	var changed []string
	mark := func(field string, ok bool) {
		if ok {
			changed = append(changed, field)
		}
	}

	if utf8.RuneCountInString(dup.Description) > utf8.RuneCountInString(keeper.Description) {
		keeper.Description = dup.Description
		mark("description", true)
	}

	if !score.HasType(keeper.Type) && score.HasType(dup.Type) {
		keeper.Type = dup.Type
		mark("type", true)
	}

	var added bool
	keeper.Geography, added = union(keeper.Geography, dup.Geography)
	mark("geography", added)
	keeper.TargetCohort, added = union(keeper.TargetCohort, dup.TargetCohort)
	mark("target_cohort", added)

	// Coordinates travel as a pair from one record
	if keeper.Latitude == nil && keeper.Longitude == nil && (dup.Latitude != nil || dup.Longitude != nil) {
		keeper.Latitude = copyFloat(dup.Latitude)
		keeper.Longitude = copyFloat(dup.Longitude)
		mark("coordinates", true)
	}

	mark("source_url", fill(&keeper.SourceURL, dup.SourceURL))
	mark("operating_organization", fill(&keeper.OperatingOrganization, dup.OperatingOrganization))
	mark("website", fill(&keeper.Website, dup.Website))
	mark("contact_phone", fill(&keeper.ContactPhone, dup.ContactPhone))
	mark("contact_email", fill(&keeper.ContactEmail, dup.ContactEmail))
	mark("evidence_level", fill(&keeper.EvidenceLevel, dup.EvidenceLevel))

	before := len(keeper.SourceDocuments)
	for _, doc := range dup.SourceDocuments {
		if !hasDocument(keeper.SourceDocuments, doc) {
			keeper.SourceDocuments = append(keeper.SourceDocuments, doc)
		}
	}
	mark("source_documents", len(keeper.SourceDocuments) > before)

	return changed
}

func fill(dst *string, src string) bool {
	if *dst != "" || src == "" {
		return false
	}
	*dst = src
	return true
}

func union(into, from model.StringList) (model.StringList, bool) {
	added := false
	for _, v := range from {
		if !contains(into, v) {
			into = append(into, v)
			added = true
		}
	}
	return into, added
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	if contains(list, v) {
		return list
	}
	return append(list, v)
}

func hasDocument(docs model.SourceDocuments, doc model.SourceDocument) bool {
	for _, d := range docs {
		if d.URL == doc.URL && d.Title == doc.Title && d.ScrapedAt.Equal(doc.ScrapedAt) {
			return true
		}
	}
	return false
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
