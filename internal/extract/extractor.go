// Package extract parses fetched listing documents into structured snapshots.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wasatchdata/listingradar/internal/listing"
)

// Sentinel aborts. Everything else extracts tolerantly to nil fields.
var (
	// ErrEmptyListing marks a delisted or unlisted page: no overview
	// section and no address anywhere in the document.
	ErrEmptyListing = errors.New("empty listing")
	// ErrOutOfMarket marks a listing whose state resolves to a
	// jurisdiction the service does not track.
	ErrOutOfMarket = errors.New("listing out of market")
)

var (
	reDirectionsAddress = regexp.MustCompile(`See Directions For Address Info`)
	reCity              = regexp.MustCompile(`\n(.*),\s[UTID]`)
	reState             = regexp.MustCompile(`,\s([A-Z]{2})`)
	reZip               = regexp.MustCompile(`,\s[UTID]{2}\s(\d*)`)
	rePrice             = regexp.MustCompile(`\$([\d,]*)`)
	reBeds              = regexp.MustCompile(`(\d*)\sBeds`)
	reBaths             = regexp.MustCompile(`(\d*)\sBath`)
	reSqFt              = regexp.MustCompile(`(\d*)\sSq\.`)
)

// Config controls extraction behavior.
type Config struct {
	// MarketTimezone is the local market zone used to derive date_listed.
	MarketTimezone string
	// DisallowedStates are two-letter codes that abort with ErrOutOfMarket.
	DisallowedStates []string
}

// Extractor turns one fetched document into a Listing+Event snapshot.
// It is deterministic given the injected clock and touches no network
// or storage.
type Extractor struct {
	loc        *time.Location
	disallowed map[string]struct{}
	clock      listing.Clock
}

// New builds an Extractor. MarketTimezone defaults to America/Denver and
// DisallowedStates to ID, matching the source market.
func New(cfg Config, clock listing.Clock) (*Extractor, error) {
	tz := cfg.MarketTimezone
	if tz == "" {
		tz = "America/Denver"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load market timezone: %w", err)
	}
	states := cfg.DisallowedStates
	if states == nil {
		states = []string{"ID"}
	}
	disallowed := make(map[string]struct{}, len(states))
	for _, s := range states {
		disallowed[strings.ToUpper(s)] = struct{}{}
	}
	return &Extractor{
		loc:        loc,
		disallowed: disallowed,
		clock:      clock,
	}, nil
}

// Extract parses the document. Single-field misses yield nil fields; a page
// with no overview and no address returns ErrEmptyListing, and a disallowed
// state returns ErrOutOfMarket. Fields the event row requires (price, days
// on market, status, year built) fail the whole extraction when absent.
func (e *Extractor) Extract(doc listing.Document) (*listing.Snapshot, error) {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	overview := root.Find("div.prop___overview").First()
	streetAddress := strings.TrimSpace(overview.Find("h2").First().Text())
	if streetAddress == "" {
		// Some active listings hide the address behind directions.
		streetAddress = reDirectionsAddress.FindString(string(doc.Body))
	}
	if overview.Length() == 0 && streetAddress == "" {
		return nil, fmt.Errorf("%s: %w", doc.MLSNumber, ErrEmptyListing)
	}

	overviewText := overview.Text()
	city := regexFind(reCity, overviewText, true)
	state := regexFind(reState, overviewText, false)
	if state != nil {
		if _, bad := e.disallowed[*state]; bad {
			return nil, fmt.Errorf("%s in %s: %w", doc.MLSNumber, *state, ErrOutOfMarket)
		}
	}
	zipCode := regexFind(reZip, overviewText, false)

	description := attrPtr(root.Find(`meta[property="og:description"]`).First(), "content")
	images := galleryImages(root)

	detailsText := root.Find("ul.prop-details-overview").First().Text()
	price, err := requiredPrice(detailsText)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", doc.MLSNumber, err)
	}
	beds := regexFindInt(reBeds, detailsText)
	baths := regexFindInt(reBaths, detailsText)
	sqFt := regexFindInt(reSqFt, detailsText)

	attrs := factAttributes(root)
	features := featureSections(root)

	daysOnMarket, err := requiredIntAttr(attrs, "days_on_ure")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", doc.MLSNumber, err)
	}
	yearBuilt, err := requiredIntAttr(attrs, "year_built")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", doc.MLSNumber, err)
	}
	status, ok := attrs["status"]
	if !ok {
		return nil, fmt.Errorf("listing %s: missing status attribute", doc.MLSNumber)
	}
	status = strings.ToLower(status)

	now := e.clock.Now()
	marketNow := now.In(e.loc)
	dateListed := truncateToDate(marketNow.AddDate(0, 0, -daysOnMarket))

	var pricePerSqFt *float64
	if sqFt != nil && *sqFt != 0 {
		v := math.Round(price/float64(*sqFt)*100) / 100
		pricePerSqFt = &v
	}

	meta := listing.Listing{
		MLSNumber:     doc.MLSNumber,
		URL:           doc.URL,
		StreetAddress: strPtrOrNil(streetAddress),
		City:          city,
		State:         state,
		ZipCode:       zipCode,
		Images:        images,
		PropertyType:  mapPtr(attrs, "type"),
		PropertyStyle: mapPtr(attrs, "style"),
		Description:   description,
		Attributes:    attrs,
		Features:      features,
		DateListed:    dateListed,
		Active:        true,
	}
	event := listing.Event{
		MLSNumber:    doc.MLSNumber,
		Price:        price,
		SqFt:         sqFt,
		PricePerSqFt: pricePerSqFt,
		Beds:         beds,
		Baths:        baths,
		YearBuilt:    yearBuilt,
		DaysOnMarket: daysOnMarket,
		Status:       status,
		EventDate:    now.UTC(),
	}
	return &listing.Snapshot{Meta: meta, Event: event}, nil
}

// galleryImages collects gallery srcs with the og:image first and deduped.
func galleryImages(root *goquery.Document) []string {
	main, _ := root.Find(`meta[property="og:image"]`).First().Attr("content")
	var images []string
	if main != "" {
		images = append(images, main)
	}
	root.Find("div.image___gallery__photo___wrap img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || src == "" || src == main {
			return
		}
		images = append(images, src)
	})
	return images
}

// factAttributes flattens the facts list into a normalized key map.
func factAttributes(root *goquery.Document) map[string]string {
	attrs := map[string]string{}
	root.Find("ul.facts___list___items div.facts___item").Each(func(_ int, sel *goquery.Selection) {
		header := sel.Find("span").First().Text()
		if header == "" {
			return
		}
		value := strings.Replace(sel.Find("div").First().Text(), header, "", 1)
		value = strings.Join(strings.Fields(value), "")
		if value == "JustListed" {
			value = "0"
		}
		attrs[normalizeKey(header)] = value
	})
	return attrs
}

// featureSections pairs each h4 header with its sibling list or paragraph.
func featureSections(root *goquery.Document) map[string]string {
	features := map[string]string{}
	root.Find("div.features-wrap h4").Each(func(_ int, header *goquery.Selection) {
		sibling := header.Next()
		if sibling.Length() == 0 {
			return
		}
		var value string
		switch goquery.NodeName(sibling) {
		case "ul":
			var items []string
			sibling.Find("li").Each(func(_ int, li *goquery.Selection) {
				if text := strings.TrimSpace(li.Text()); text != "" {
					items = append(items, text)
				}
			})
			value = strings.Join(items, ",")
		case "p":
			value = strings.TrimSpace(sibling.Text())
		default:
			return
		}
		features[normalizeKey(header.Text())] = value
	})
	return features
}

func normalizeKey(header string) string {
	key := strings.ToLower(strings.TrimSpace(header))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "#", "_num")
	key = strings.ReplaceAll(key, ":", "")
	key = strings.ReplaceAll(key, "'", "")
	return key
}

func requiredPrice(detailsText string) (float64, error) {
	raw := regexFind(rePrice, detailsText, false)
	if raw == nil {
		return 0, errors.New("missing price")
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(*raw, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", *raw, err)
	}
	return price, nil
}

func requiredIntAttr(attrs map[string]string, key string) (int, error) {
	raw, ok := attrs[key]
	if !ok {
		return 0, fmt.Errorf("missing %s attribute", key)
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, raw, err)
	}
	return value, nil
}

func regexFind(re *regexp.Regexp, text string, strip bool) *string {
	match := re.FindStringSubmatch(text)
	if len(match) < 2 || match[1] == "" {
		return nil
	}
	value := match[1]
	if strip {
		value = strings.TrimSpace(value)
	}
	return &value
}

func regexFindInt(re *regexp.Regexp, text string) *int {
	raw := regexFind(re, text, false)
	if raw == nil {
		return nil
	}
	value, err := strconv.Atoi(*raw)
	if err != nil {
		return nil
	}
	return &value
}

func mapPtr(attrs map[string]string, key string) *string {
	if value, ok := attrs[key]; ok && value != "" {
		return &value
	}
	return nil
}

func attrPtr(sel *goquery.Selection, name string) *string {
	if value, ok := sel.Attr(name); ok && value != "" {
		return &value
	}
	return nil
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
