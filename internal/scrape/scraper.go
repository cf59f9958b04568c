package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/gregoryb/recordscrape/internal/config"
	"github.com/gregoryb/recordscrape/internal/pool"
	"github.com/gregoryb/recordscrape/internal/task"
)

// maxSectionCards bounds the pager-arrow loop inside one record
// section so a misrendered arrow cannot spin forever.
const maxSectionCards = 30

// Browser runs devtools actions against one browser session. The
// session package's Session satisfies it.
type Browser interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
}

// Scraper drives a browser session through the county record site:
// disclaimer, address search, then record-by-record collection.
type Scraper struct {
	searchURL string
	logger    *slog.Logger
}

func NewScraper(cfg config.BrowserConfig, logger *slog.Logger) *Scraper {
	return &Scraper{
		searchURL: cfg.SearchURL,
		logger:    logger.With("component", "scraper"),
	}
}

// WorkFunc adapts the scraper to the task engine. The payload must be
// a *Request and the handle a Browser session.
func (s *Scraper) WorkFunc() task.WorkFunc {
	return func(ctx context.Context, handle pool.Handle, payload any, quit <-chan struct{}) (any, error) {
		req, ok := payload.(*Request)
		if !ok {
			return nil, &DataError{Op: "read payload", Err: fmt.Errorf("unexpected payload type %T", payload)}
		}
		browser, ok := handle.(Browser)
		if !ok {
			return nil, &SessionError{Op: "acquire browser", Err: fmt.Errorf("handle type %T cannot run browser actions", handle)}
		}
		return s.Search(ctx, browser, req, quit)
	}
}

// Search performs the address search and collects up to
// req.MaxResults listings. quit is checked between listings and
// between record pages; when it fires, the listings collected so far
// are returned alongside task.ErrCanceled.
func (s *Scraper) Search(ctx context.Context, b Browser, req *Request, quit <-chan struct{}) (*Result, error) {
	if err := s.openSearchPage(ctx, b); err != nil {
		return nil, err
	}
	total, err := s.submitSearch(ctx, b, req.Address)
	if err != nil {
		return nil, err
	}

	want := req.MaxResults
	if total < want {
		want = total
	}

	result := &Result{Records: make([]Record, 0, want), TotalListings: total}
	for index := 1; index <= want; index++ {
		select {
		case <-quit:
			s.logger.Info("scrape canceled between listings",
				"collected", len(result.Records), "total", total)
			return result, task.ErrCanceled
		default:
		}

		record, err := s.collectRecord(ctx, b, req.Pages, quit)
		if err != nil {
			if errors.Is(err, task.ErrCanceled) {
				return result, task.ErrCanceled
			}
			// Step timeouts are routine on this site. Keep what we
			// have instead of failing the whole task.
			if errors.Is(err, context.DeadlineExceeded) && len(result.Records) > 0 {
				s.logger.Warn("scrape timed out partway, returning partial results",
					"collected", len(result.Records), "total", total)
				return result, nil
			}
			return nil, err
		}
		result.Records = append(result.Records, *record)
		s.logger.Info("listing collected",
			"index", index, "total", total, "parcel_id", record.Heading.ParcelID)

		if index < want {
			if err := s.nextRecord(ctx, b); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// openSearchPage navigates to the search form, clicking through the
// site disclaimer when it appears.
func (s *Scraper) openSearchPage(ctx context.Context, b Browser) error {
	var clicked bool
	err := b.Run(ctx,
		chromedp.Navigate(s.searchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`(() => {
			const agree = document.querySelector('#btAgree');
			if (agree) { agree.click(); return true }
			return false
		})()`, &clicked),
	)
	if err != nil {
		return &SessionError{Op: "open search page", Err: err}
	}
	if clicked {
		if err := b.Run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
			return &SessionError{Op: "pass disclaimer", Err: err}
		}
	}
	return nil
}

// submitSearch fills the address form, submits it and lands on the
// first matching record. It returns the total number of listings the
// site reported.
func (s *Scraper) submitSearch(ctx context.Context, b Browser, addr Address) (int, error) {
	actions := []chromedp.Action{
		chromedp.WaitVisible("#inpStreet", chromedp.ByQuery),
		chromedp.Clear("#inpStreet", chromedp.ByQuery),
		chromedp.SendKeys("#inpStreet", addr.Street, chromedp.ByQuery),
	}
	if addr.Number != "" {
		actions = append(actions,
			chromedp.Clear("#inpNumber", chromedp.ByQuery),
			chromedp.SendKeys("#inpNumber", addr.Number, chromedp.ByQuery),
		)
	}
	if addr.Direction != "" {
		actions = append(actions,
			chromedp.SetValue("#Select1", addr.Direction, chromedp.ByQuery),
		)
	}
	actions = append(actions,
		chromedp.Click("#optionsRowElement #btSearch", chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := b.Run(ctx, actions...); err != nil {
		return 0, &SessionError{Op: "submit address search", Err: err}
	}

	doc, err := s.capture(ctx, b)
	if err != nil {
		return 0, err
	}

	// A single match drops the browser straight onto the record page.
	// Multiple matches land on a results list; open the first one.
	if doc.Find("#datalet_header_row").Length() == 0 {
		if doc.Find(".SearchResults").Length() == 0 {
			return 0, &DataError{Op: "submit address search", Err: errors.New("address search returned no results")}
		}
		err := b.Run(ctx,
			chromedp.Click(".SearchResults", chromedp.ByQuery),
			chromedp.WaitReady("#datalet_header_row", chromedp.ByQuery),
		)
		if err != nil {
			return 0, &SessionError{Op: "open first search result", Err: err}
		}
		if doc, err = s.capture(ctx, b); err != nil {
			return 0, err
		}
	}

	if _, total, err := parseListingIndex(doc); err == nil {
		return total, nil
	}
	// No navigator widget means the search matched exactly one record.
	return 1, nil
}

// collectRecord parses the heading plus every requested page of the
// record currently on screen.
func (s *Scraper) collectRecord(ctx context.Context, b Browser, pages []Page, quit <-chan struct{}) (*Record, error) {
	doc, err := s.capture(ctx, b)
	if err != nil {
		return nil, err
	}
	heading, err := parseHeading(doc)
	if err != nil {
		return nil, err
	}

	record := &Record{Heading: heading, Pages: make(map[Page]PageData, len(pages))}
	for _, page := range pages {
		select {
		case <-quit:
			return nil, task.ErrCanceled
		default:
		}
		data, err := s.collectPage(ctx, b, page)
		if err != nil {
			return nil, err
		}
		record.Pages[page] = data
	}
	return record, nil
}

// collectPage opens one record page and gathers every card of every
// section, following the per-section pager arrows.
func (s *Scraper) collectPage(ctx context.Context, b Browser, page Page) (PageData, error) {
	if err := s.goToPage(ctx, b, page); err != nil {
		return nil, err
	}
	doc, err := s.capture(ctx, b)
	if err != nil {
		return nil, err
	}
	sections, err := parsePageSections(doc)
	if err != nil {
		return nil, err
	}

	data := make(PageData, len(sections))
	for i, sec := range sections {
		data[sec.Label] = append(data[sec.Label], sec.Card)

		for more, guard := sec.More, 0; more && guard < maxSectionCards; guard++ {
			if err := s.pressSectionArrow(ctx, b, i); err != nil {
				return nil, err
			}
			next, err := s.capture(ctx, b)
			if err != nil {
				return nil, err
			}
			fresh, err := parsePageSections(next)
			if err != nil || i >= len(fresh) {
				break
			}
			data[sec.Label] = append(data[sec.Label], fresh[i].Card)
			more = fresh[i].More
		}
	}
	return data, nil
}

// goToPage clicks the navigation entry whose text matches the page
// name exactly.
func (s *Scraper) goToPage(ctx context.Context, b Browser, page Page) error {
	err := b.Run(ctx,
		chromedp.Click(fmt.Sprintf(`//*[text()=%q]`, string(page)), chromedp.BySearch),
		chromedp.WaitReady("#datalet_header_row", chromedp.ByQuery),
	)
	if err != nil {
		return &SessionError{Op: "open record page " + string(page), Err: err}
	}
	return nil
}

// pressSectionArrow clicks the "next page" arrow of the i-th section's
// label table. Table pairs are interleaved, so the label table of
// section i is match 2i+1 in XPath's one-based indexing.
func (s *Scraper) pressSectionArrow(ctx context.Context, b Browser, i int) error {
	xpath := fmt.Sprintf(
		`((//div[contains(@class,'holder')]/table | //div[contains(@class,'holder')]/*/table)[%d]//*[@title='next page'])[1]`,
		2*i+1)
	if err := b.Run(ctx, chromedp.Click(xpath, chromedp.BySearch)); err != nil {
		return &SessionError{Op: "advance section cards", Err: err}
	}
	return nil
}

// nextRecord advances the browser to the next listing. The Parcel page
// renders fastest, so navigation always hops there first.
func (s *Scraper) nextRecord(ctx context.Context, b Browser) error {
	if err := s.goToPage(ctx, b, PageParcel); err != nil {
		return err
	}
	err := b.Run(ctx,
		chromedp.Click("#DTLNavigator_imageNext", chromedp.ByQuery),
		chromedp.WaitReady("#datalet_header_row", chromedp.ByQuery),
	)
	if err != nil {
		return &SessionError{Op: "advance to next listing", Err: err}
	}
	return nil
}

// capture pulls the rendered document out of the browser for goquery
// parsing.
func (s *Scraper) capture(ctx context.Context, b Browser) (*goquery.Document, error) {
	var html string
	if err := b.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, &SessionError{Op: "capture page html", Err: err}
	}
	return parseDocument(html)
}
