package research

// Operation names a step that can fail while answering a request.
type Operation string

const (
	OpValidate Operation = "validate"
	OpSearch   Operation = "search"
	OpFetch    Operation = "fetch"
	OpIngest   Operation = "ingest"
	OpRetrieve Operation = "retrieve"
	OpGenerate Operation = "generate"
)

// FailureMode says what a failed operation does to the request.
type FailureMode int

const (
	// Degrade replaces the failure with a usable stand-in and carries on.
	Degrade FailureMode = iota
	// Surface aborts the request and reports the failure to the caller.
	Surface
)

func (m FailureMode) String() string {
	if m == Surface {
		return "surface"
	}
	return "degrade"
}

type Policy struct {
	Mode     FailureMode
	Fallback string
}

// Policies is the per-operation failure contract. Evidence and generation
// failures degrade so a partial answer is still returned; bad input and
// documents the user asked for abort the request.
var Policies = map[Operation]Policy{
	OpValidate: {Mode: Surface},
	OpSearch:   {Mode: Degrade, Fallback: "encyclopedia and academic fallback links"},
	OpFetch:    {Mode: Surface},
	OpIngest:   {Mode: Surface},
	OpRetrieve: {Mode: Degrade, Fallback: "no document chunks"},
	OpGenerate: {Mode: Degrade, Fallback: "zero-confidence placeholder response"},
}

// degrades reports whether a failure of op should be absorbed.
func degrades(op Operation) bool {
	return Policies[op].Mode == Degrade
}
