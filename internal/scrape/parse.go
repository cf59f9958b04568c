package scrape

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// recordTableSelector matches the paired label/data tables that make up
// each section of a record page. Tables come in pairs: the label table
// on top, the card data table under it.
const recordTableSelector = "div[class*='holder'] > table, div[class*='holder'] > * > table"

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &DataError{Op: "parse page html", Err: err}
	}
	return doc, nil
}

// parseHeading extracts the record banner: parcel id, owner name and
// situs address.
func parseHeading(doc *goquery.Document) (Heading, error) {
	header := doc.Find("#datalet_header_row").First()
	if header.Length() == 0 {
		return Heading{}, &DataError{Op: "parse heading", Err: errors.New("datalet header row not found")}
	}

	top := collapseSpace(header.Find(".DataletHeaderTop").First().Text())
	bottoms := header.Find(".DataletHeaderBottom")
	if bottoms.Length() < 2 {
		return Heading{}, &DataError{Op: "parse heading", Err: errors.New("datalet header bottom rows missing")}
	}

	// Bottom row 0 carries "<street>, <address>"; everything before the
	// first comma is noise.
	address := collapseSpace(bottoms.Eq(0).Text())
	if i := strings.Index(address, ","); i >= 0 {
		address = strings.TrimSpace(address[i+1:])
	}

	return Heading{
		ParcelID: strings.TrimSpace(strings.TrimPrefix(top, "PARID:")),
		Owner:    strings.TrimSuffix(collapseSpace(bottoms.Eq(1).Text()), ","),
		Address:  address,
	}, nil
}

// pageSection is one labeled section of a record page. More reports
// whether the site offers further cards behind a pager arrow.
type pageSection struct {
	Label string
	Card  map[string]string
	More  bool
}

// parsePageSections walks the label/data table pairs of a record page
// and returns one section per pair, in display order.
func parsePageSections(doc *goquery.Document) ([]pageSection, error) {
	tables := doc.Find(recordTableSelector)
	n := tables.Length()
	if n < 2 {
		return nil, &DataError{Op: "parse record tables", Err: errors.New("no record tables found")}
	}

	sections := make([]pageSection, 0, n/2)
	for i := 0; i+1 < n; i += 2 {
		top := tables.Eq(i)
		bottom := tables.Eq(i + 1)
		sections = append(sections, pageSection{
			Label: sectionLabel(top.Text()),
			Card:  parseRecordCard(bottom),
			More:  top.Find("[title='next page']").Length() > 0,
		})
	}
	return sections, nil
}

// parseRecordCard zips the side headings of a data table with their
// values.
func parseRecordCard(table *goquery.Selection) map[string]string {
	card := make(map[string]string)
	headings := table.Find(".DataletSideHeading")
	data := table.Find(".DataletData")
	headings.Each(func(i int, s *goquery.Selection) {
		if i < data.Length() {
			card[collapseSpace(s.Text())] = collapseSpace(data.Eq(i).Text())
		}
	})
	return card
}

// sectionLabel strips the card counter ("Owner 1 of 3" style suffixes)
// from a label table's text.
func sectionLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	for i, r := range raw {
		if unicode.IsDigit(r) {
			raw = raw[:i]
			break
		}
	}
	return strings.TrimSpace(raw)
}

// parseListingIndex reads the "N of M" navigator widget and returns the
// current listing position and the total number of listings.
func parseListingIndex(doc *goquery.Document) (current, total int, err error) {
	value, ok := doc.Find("#DTLNavigator_txtFromTo").First().Attr("value")
	if !ok {
		return 0, 0, &DataError{Op: "parse listing index", Err: errors.New("listing navigator not found")}
	}
	parts := strings.SplitN(value, "of", 2)
	if len(parts) != 2 {
		return 0, 0, &DataError{Op: "parse listing index", Err: errors.New("malformed listing navigator value: " + value)}
	}
	current, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err == nil {
		total, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	if err != nil {
		return 0, 0, &DataError{Op: "parse listing index", Err: err}
	}
	return current, total, nil
}

// collapseSpace trims a string and folds internal whitespace runs into
// single spaces, matching how a browser renders text.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
