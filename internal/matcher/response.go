package matcher

// Response is the wire shape of a match request.
type Response struct {
	Success      bool    `json:"success"`
	Error        string  `json:"error,omitempty"`
	Strategy     string  `json:"strategy,omitempty"`
	Matches      []Match `json:"matches"`
	TotalScanned int     `json:"total_scanned"`
}

// NewResponse converts a pipeline result into its wire shape.
func NewResponse(res *Result) Response {
	matches := res.Matches
	if matches == nil {
		matches = []Match{}
	}
	return Response{
		Success:      true,
		Strategy:     res.Strategy,
		Matches:      matches,
		TotalScanned: res.TotalScanned,
	}
}

// FailureResponse reports a failed request. Matches is always an empty list.
func FailureResponse(err error) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Matches: []Match{},
	}
}
