package inbound

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/capitalize-ai/imbot-relay/internal/model"
)

// DefaultFileName is used when an attachment carries no display name.
const DefaultFileName = "unknown_file"

var fileURLKey = regexp.MustCompile(`^data\[PARAMS\]\[FILES\]\[([^\]]+)\]\[urlDownload\]$`)

// Classifier extracts canonical events from normalized payloads.
type Classifier struct {
	aliases []Alias
}

// NewClassifier creates a classifier using the given alias table, or
// DefaultAliases when none is given.
func NewClassifier(aliases []Alias) *Classifier {
	if len(aliases) == 0 {
		aliases = DefaultAliases
	}
	return &Classifier{aliases: aliases}
}

// Classify builds the canonical event for p. Unrecognized events classify
// as model.EventKindUnknown and carry no further fields.
func (c *Classifier) Classify(p Payload) model.InboundEvent {
	name := p.EventName()
	ev := model.InboundEvent{
		Kind:     model.KindFromEventName(name),
		RawEvent: name,
	}
	if ev.Kind == model.EventKindUnknown {
		return ev
	}

	ev.ConversationID = Resolve(p, c.aliases, FieldConversationID)
	ev.Text = Resolve(p, c.aliases, FieldText)
	ev.File = FindFile(p)
	return ev
}

type fileCandidate struct {
	id   string
	url  string
	name string
}

// FindFile returns the first attachment in p, ordered by file id. Only one
// attachment per message is processed.
func FindFile(p Payload) *model.FileReference {
	var candidates []fileCandidate

	for key, v := range p {
		m := fileURLKey.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		u := stringValue(v)
		if u == "" {
			continue
		}
		id := m[1]
		candidates = append(candidates, fileCandidate{
			id:   id,
			url:  u,
			name: stringValue(p["data[PARAMS][FILES]["+id+"][name]"]),
		})
	}

	candidates = append(candidates, nestedFiles(p)...)
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return lessID(candidates[i].id, candidates[j].id)
	})

	first := candidates[0]
	if first.name == "" {
		first.name = DefaultFileName
	}
	return &model.FileReference{URL: first.url, DisplayName: first.name}
}

// nestedFiles reads data.PARAMS.FILES from a JSON body.
func nestedFiles(p Payload) []fileCandidate {
	data, _ := p["data"].(map[string]any)
	params, _ := data["PARAMS"].(map[string]any)
	if params == nil {
		return nil
	}

	var out []fileCandidate
	add := func(id string, entry any) {
		file, ok := entry.(map[string]any)
		if !ok {
			return
		}
		if u := stringValue(file["urlDownload"]); u != "" {
			out = append(out, fileCandidate{id: id, url: u, name: stringValue(file["name"])})
		}
	}

	switch files := params["FILES"].(type) {
	case map[string]any:
		for id, entry := range files {
			add(id, entry)
		}
	case []any:
		for i, entry := range files {
			add(strconv.Itoa(i), entry)
		}
	}
	return out
}

func lessID(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}
