package bhunaksha

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
)

// Level ids of the cascading select lists.
const (
	levelDistrict = 1
	levelTehsil   = 2
	levelRI       = 3
	levelVillage  = 4
	levelSheet    = 5
)

// Sheets lists the numeric sheet identifiers of a village in page order.
// A page without a sheet list yields no sheets.
func (c *Client) Sheets(ctx context.Context, village string) ([]string, error) {
	body, err := c.levelList(ctx, levelSheet, c.cfg.Path.Selections(village))
	if err != nil {
		return nil, fmt.Errorf("%w: village %s: %w", crawler.ErrDiscovery, village, err)
	}
	options, found, err := parseOptions(body, levelSheet)
	if err != nil {
		return nil, fmt.Errorf("%w: village %s: %w", crawler.ErrDiscovery, village, err)
	}
	if !found {
		c.logger.Warn("sheet list missing", zap.String("village", village))
		return []string{}, nil
	}

	sheets := make([]string, 0, len(options))
	for _, opt := range options {
		if isDigits(opt.Value) {
			sheets = append(sheets, opt.Value)
		}
	}
	c.logger.Info("discovered sheets", zap.String("village", village), zap.Strings("sheets", sheets))
	return sheets, nil
}

// Districts reads the district list from the landing page.
func (c *Client) Districts(ctx context.Context) ([]crawler.Option, error) {
	body, err := c.get(ctx, c.cfg.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: districts: %w", crawler.ErrDiscovery, err)
	}
	return requireOptions(body, levelDistrict)
}

// Tehsils lists the tehsils of a district.
func (c *Client) Tehsils(ctx context.Context, district string) ([]crawler.Option, error) {
	return c.hierarchyLevel(ctx, levelTehsil, district)
}

// RICircles lists the revenue-inspector circles of a tehsil.
func (c *Client) RICircles(ctx context.Context, district, tehsil string) ([]crawler.Option, error) {
	return c.hierarchyLevel(ctx, levelRI, district, tehsil)
}

// Villages lists the villages of an RI circle.
func (c *Client) Villages(ctx context.Context, district, tehsil, ri string) ([]crawler.Option, error) {
	return c.hierarchyLevel(ctx, levelVillage, district, tehsil, ri)
}

func (c *Client) hierarchyLevel(ctx context.Context, level int, selections ...string) ([]crawler.Option, error) {
	body, err := c.levelList(ctx, level, strings.Join(selections, ","))
	if err != nil {
		return nil, fmt.Errorf("%w: level %d: %w", crawler.ErrDiscovery, level, err)
	}
	return requireOptions(body, level)
}

func (c *Client) levelList(ctx context.Context, level int, selections string) ([]byte, error) {
	query := url.Values{
		"OP":         {opLevelList},
		"level":      {fmt.Sprint(level)},
		"state":      {c.cfg.Path.State},
		"selections": {selections},
	}
	return c.get(ctx, c.cfg.APIURL, query)
}

func requireOptions(body []byte, level int) ([]crawler.Option, error) {
	options, found, err := parseOptions(body, level)
	if err != nil {
		return nil, fmt.Errorf("%w: level %d: %w", crawler.ErrDiscovery, level, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %w: select#level_%d not found", crawler.ErrDiscovery, crawler.ErrParse, level)
	}
	return options, nil
}

// parseOptions extracts the options of select#level_N. found is false when the
// select element is absent.
func parseOptions(body []byte, level int) ([]crawler.Option, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("%w: parse html: %w", crawler.ErrParse, err)
	}
	sel := doc.Find(fmt.Sprintf("select#level_%d", level)).First()
	if sel.Length() == 0 {
		return nil, false, nil
	}
	options := []crawler.Option{}
	sel.Find("option").Each(func(_ int, s *goquery.Selection) {
		value, _ := s.Attr("value")
		options = append(options, crawler.Option{
			Value: strings.TrimSpace(value),
			Label: strings.TrimSpace(s.Text()),
		})
	})
	return options, true, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
