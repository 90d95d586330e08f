// Package features describes the CSV columns the remote model was trained on.
package features

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Feature is one required input column.
type Feature struct {
	Name        string
	Description string
}

// Required lists every column the service expects. Order is irrelevant to the
// service; this order is the one shown on the page.
var Required = []Feature{
	{"Prefix_Suffix", "Checks for dashes in domain"},
	{"having_Sub_Domain", "Counts number of subdomains"},
	{"SSLfinal_State", "Analyzes SSL certificate"},
	{"Domain_registeration_length", "Measures domain registration duration"},
	{"Favicon", "Checks favicon source"},
	{"port", "Detects unusual ports"},
	{"HTTPS_token", "Flags 'HTTPS' in domain name"},
	{"Request_URL", "Checks resource loading domains"},
	{"URL_of_Anchor", "Analyzes anchor tag destinations"},
	{"Links_in_tags", "Measures links in HTML tags"},
	{"SFH", "Checks form handler locations"},
	{"Submitting_to_email", "Flags form submission to email"},
	{"Abnormal_URL", "Identifies URL-domain mismatches"},
	{"Redirect", "Counts redirections"},
	{"on_mouseover", "Detects JavaScript events"},
	{"RightClick", "Identifies right-click disabling"},
	{"popUpWidnow", "Flags popup windows"},
	{"Iframe", "Detects invisible iframes"},
	{"age_of_domain", "Analyzes domain age"},
	{"DNSRecord", "Checks DNS records"},
	{"web_traffic", "Measures website traffic"},
	{"Page_Rank", "Checks page rank"},
	{"Google_Index", "Identifies Google indexing"},
	{"Links_pointing_to_page", "Counts inbound links"},
	{"Statistical_report", "Flags reported suspicious activity"},
}

// ErrNoHeader is returned when the content has no header row at all.
var ErrNoHeader = errors.New("features: csv has no header row")

// Names returns the required column names in display order.
func Names() []string {
	out := make([]string, 0, len(Required))
	for _, f := range Required {
		out = append(out, f.Name)
	}
	return out
}

// MissingColumns reads only the header row of data and returns the required
// columns it lacks, in display order. Names match exactly, as the service does.
// The result is advisory; callers still submit the file.
func MissingColumns(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("features: read header: %w", err)
	}

	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = struct{}{}
	}

	var missing []string
	for _, f := range Required {
		if _, ok := present[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing, nil
}
