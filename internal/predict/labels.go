package predict

// Row is one line of the result table.
type Row struct {
	Index      int    `json:"website_no"`
	Prediction int    `json:"prediction"`
	Label      string `json:"label"`
}

const (
	LabelSafe      = "Safe"
	LabelMalicious = "Malicious"
)

var labels = map[int]string{
	0: LabelSafe,
	1: LabelMalicious,
}

// Label maps a raw model output to its human-readable name.
func Label(p int) (string, error) {
	l, ok := labels[p]
	if !ok {
		return "", &UnmappedLabelError{Value: p}
	}
	return l, nil
}

// Rows builds the result table in response order. Index is 1-based. A single
// unknown value rejects the whole batch.
func Rows(predictions []int) ([]Row, error) {
	rows := make([]Row, 0, len(predictions))
	for i, p := range predictions {
		l, err := Label(p)
		if err != nil {
			return nil, &UnmappedLabelError{Index: i + 1, Value: p}
		}
		rows = append(rows, Row{Index: i + 1, Prediction: p, Label: l})
	}
	return rows, nil
}
