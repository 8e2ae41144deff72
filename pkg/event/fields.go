package event

type Field string

const (
	FieldTitle             Field = "title"
	FieldDescription       Field = "description"
	FieldStartTime         Field = "start_time"
	FieldEndTime           Field = "end_time"
	FieldLocation          Field = "location"
	FieldIsRecurring       Field = "is_recurring"
	FieldRecurrencePattern Field = "recurrence_pattern"
)

// MutableFields is the canonical field order. Snapshot, diff and rollback all iterate it.
var MutableFields = []Field{
	FieldTitle,
	FieldDescription,
	FieldStartTime,
	FieldEndTime,
	FieldLocation,
	FieldIsRecurring,
	FieldRecurrencePattern,
}

// Value returns the field's value in its JSON-friendly form.
func (f Fields) Value(field Field) any {
	switch field {
	case FieldTitle:
		return f.Title
	case FieldDescription:
		return f.Description
	case FieldStartTime:
		return f.StartTime
	case FieldEndTime:
		return f.EndTime
	case FieldLocation:
		return f.Location
	case FieldIsRecurring:
		return f.IsRecurring
	case FieldRecurrencePattern:
		return f.RecurrencePattern
	}
	return nil
}

// FieldEqual compares one field. Times compare by instant, not by location.
func (f Fields) FieldEqual(field Field, other Fields) bool {
	switch field {
	case FieldStartTime:
		return f.StartTime.Equal(other.StartTime)
	case FieldEndTime:
		return f.EndTime.Equal(other.EndTime)
	}
	return f.Value(field) == other.Value(field)
}

// Assign copies one field from src.
func (f *Fields) Assign(field Field, src Fields) {
	switch field {
	case FieldTitle:
		f.Title = src.Title
	case FieldDescription:
		f.Description = src.Description
	case FieldStartTime:
		f.StartTime = src.StartTime
	case FieldEndTime:
		f.EndTime = src.EndTime
	case FieldLocation:
		f.Location = src.Location
	case FieldIsRecurring:
		f.IsRecurring = src.IsRecurring
	case FieldRecurrencePattern:
		f.RecurrencePattern = src.RecurrencePattern
	}
}

// CopyFields returns a copy of src built field by field over MutableFields.
func CopyFields(src Fields) Fields {
	var dst Fields
	for _, field := range MutableFields {
		dst.Assign(field, src)
	}
	return dst
}

func (f Fields) Equal(other Fields) bool {
	for _, field := range MutableFields {
		if !f.FieldEqual(field, other) {
			return false
		}
	}
	return true
}

// UTC normalizes both timestamps to UTC.
func (f Fields) UTC() Fields {
	f.StartTime = f.StartTime.UTC()
	f.EndTime = f.EndTime.UTC()
	return f
}

