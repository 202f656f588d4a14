package scraper

import (
	"google.golang.org/adk/tool"

	"conductor/internal/tools"
	"conductor/pkg/errors"
)

// Register adds the web scraping tools backed by client.
func Register(reg *tools.Registry, client *Client) error {
	defs := []struct {
		def tools.Definition
		fn  tools.Handler
	}{
		{
			def: tools.Definition{
				Name:        "scrape_url",
				Description: "Fetch a single web page and return its content as markdown. Use for reading a specific known URL.",
				Category:    "scraper",
			},
			fn: func(ctx tool.Context, args map[string]interface{}) (map[string]interface{}, error) {
				pageURL, _ := args["url"].(string)
				if pageURL == "" {
					return nil, errors.Wrap(errors.ErrInvalidInput, "scrape_url: url is required")
				}

				opts := ScrapeOptions{OnlyMainContent: true}
				if formats, ok := args["formats"].([]interface{}); ok {
					for _, f := range formats {
						if s, ok := f.(string); ok {
							opts.Formats = append(opts.Formats, s)
						}
					}
				}

				data, err := client.Scrape(ctx, pageURL, opts)
				if err != nil {
					return nil, errors.Wrap(err, "scrape_url")
				}
				return data, nil
			},
		},
		{
			def: tools.Definition{
				Name:        "web_search",
				Description: "Search the web for pages matching a query. Returns result titles, URLs and snippets.",
				Category:    "scraper",
			},
			fn: func(ctx tool.Context, args map[string]interface{}) (map[string]interface{}, error) {
				query, _ := args["query"].(string)
				if query == "" {
					return nil, errors.Wrap(errors.ErrInvalidInput, "web_search: query is required")
				}

				limit := 0
				if raw, ok := args["limit"].(float64); ok {
					limit = int(raw)
				}

				data, err := client.Search(ctx, SearchRequest{Query: query, Limit: limit})
				if err != nil {
					return nil, errors.Wrap(err, "web_search")
				}
				return data, nil
			},
		},
		{
			def: tools.Definition{
				Name:        "crawl_site",
				Description: "Crawl a website starting from a URL and return the content of discovered pages. Long-running; use only when one page is not enough.",
				Category:    "scraper",
			},
			fn: func(ctx tool.Context, args map[string]interface{}) (map[string]interface{}, error) {
				siteURL, _ := args["url"].(string)
				if siteURL == "" {
					return nil, errors.Wrap(errors.ErrInvalidInput, "crawl_site: url is required")
				}

				req := CrawlRequest{URL: siteURL, Limit: 200}
				if raw, ok := args["max_pages"].(float64); ok && raw > 0 {
					req.Limit = int(raw)
				}

				data, err := client.Crawl(ctx, req)
				if err != nil {
					return nil, errors.Wrap(err, "crawl_site")
				}
				return data, nil
			},
		},
		{
			def: tools.Definition{
				Name:        "extract_structured",
				Description: "Extract structured data from one or more URLs using a natural language prompt or a JSON schema.",
				Category:    "scraper",
			},
			fn: func(ctx tool.Context, args map[string]interface{}) (map[string]interface{}, error) {
				req := ExtractRequest{}
				if urls, ok := args["urls"].([]interface{}); ok {
					for _, u := range urls {
						if s, ok := u.(string); ok {
							req.URLs = append(req.URLs, s)
						}
					}
				}
				if prompt, ok := args["prompt"].(string); ok {
					req.Prompt = prompt
				}
				if schema, ok := args["schema"].(map[string]interface{}); ok {
					req.Schema = schema
				}

				if len(req.URLs) == 0 {
					return nil, errors.Wrap(errors.ErrInvalidInput, "extract_structured: urls are required")
				}

				data, err := client.Extract(ctx, req)
				if err != nil {
					return nil, errors.Wrap(err, "extract_structured")
				}
				return data, nil
			},
		},
	}

	for _, d := range defs {
		if err := reg.RegisterFunc(d.def, d.fn); err != nil {
			return err
		}
	}
	return nil
}
