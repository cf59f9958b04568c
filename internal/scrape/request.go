package scrape

import "fmt"

// MaxResultsCap bounds how many listings one task may collect. Larger
// requests are clamped, never rejected.
const MaxResultsCap = 10

// Address is the search input for the county record site. Number and
// Direction are optional; Street is required.
type Address struct {
	Number    string `json:"number"`
	Street    string `json:"street"`
	Direction string `json:"direction"`
}

// Request is the payload of one scrape task.
type Request struct {
	Address    Address `json:"address"`
	Pages      []Page  `json:"pages"`
	MaxResults int     `json:"max_results"`
}

// Validate checks the request and clamps MaxResults to MaxResultsCap.
func (r *Request) Validate() error {
	if r.Address.Street == "" {
		return fmt.Errorf("address street is required")
	}
	if len(r.Pages) == 0 {
		return fmt.Errorf("at least one record page is required")
	}
	for _, p := range r.Pages {
		if !ValidPage(string(p)) {
			return fmt.Errorf("unknown record page %q", p)
		}
	}
	if r.MaxResults <= 0 {
		return fmt.Errorf("max_results must be a positive integer")
	}
	if r.MaxResults > MaxResultsCap {
		r.MaxResults = MaxResultsCap
	}
	return nil
}

// Heading is the summary banner shown at the top of every record.
type Heading struct {
	ParcelID string `json:"parid"`
	Owner    string `json:"owner"`
	Address  string `json:"address"`
}

// PageData holds the parsed sections of one record page: section label
// to the cards found under it, each card a field-to-value map.
type PageData map[string][]map[string]string

// Record is one scraped property listing.
type Record struct {
	Heading Heading           `json:"heading"`
	Pages   map[Page]PageData `json:"page_data"`
}

// Result is the outcome of a scrape task. TotalListings is the match
// count the site reported; Records holds what was actually collected,
// which is smaller when the task was canceled or the site timed out
// partway.
type Result struct {
	Records       []Record `json:"records"`
	TotalListings int      `json:"total_listings"`
}
