package domain

// Field names one slot of the marketing brief.
type Field string

const (
	FieldObjectives Field = "objectives"
	FieldBudget     Field = "budget"
	FieldChannel    Field = "channel"
	FieldDuration   Field = "duration"
)

// BriefFields is the declared slot schema. Re-prompts enumerate missing
// fields in exactly this order, so it must stay stable.
var BriefFields = []Field{FieldObjectives, FieldBudget, FieldChannel, FieldDuration}

// Brief maps each schema field to its confirmed value. An empty string means
// the slot has not been filled yet.
type Brief map[Field]string

// NewBrief returns a brief with every schema field unset.
func NewBrief() Brief {
	b := make(Brief, len(BriefFields))
	for _, f := range BriefFields {
		b[f] = ""
	}
	return b
}

// Clone returns an independent copy of the brief.
func (b Brief) Clone() Brief {
	out := make(Brief, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Merge returns a new brief with update applied on top of b. A nil entry in
// update means "not mentioned this turn" and leaves the existing value
// untouched, so a filled slot is never cleared by a later turn.
func (b Brief) Merge(update map[Field]*string) Brief {
	out := b.Clone()
	for _, f := range BriefFields {
		v, ok := update[f]
		if !ok || v == nil || *v == "" {
			continue
		}
		out[f] = *v
	}
	return out
}

// Missing returns the unset fields in declared schema order.
func (b Brief) Missing() []Field {
	var missing []Field
	for _, f := range BriefFields {
		if b[f] == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Complete reports whether every schema field has a confirmed value.
func (b Brief) Complete() bool {
	return len(b.Missing()) == 0
}
