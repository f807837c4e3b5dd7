package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/smarteraz/models"
)

func main() {
	apiURL := os.Getenv("SMARTERAZ_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SMARTERAZ_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SMARTERAZ_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"smarteraz",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_amazon",
		append(filterOptions(),
			mcp.WithDescription("Search the Amazon storefront and return every result across all result pages. Sponsored results are excluded. Can take several minutes for broad searches."),
			mcp.WithNumber("max_pages",
				mcp.Description("Stop after this many result pages (default: no limit)"),
			),
			mcp.WithBoolean("dedupe",
				mcp.Description("Drop results whose product already appeared on an earlier page"),
			),
		)...,
	)
	s.AddTool(searchTool, handleSearch(apiURL, apiKey))

	pageTool := mcp.NewTool("search_amazon_page",
		append(filterOptions(),
			mcp.WithDescription("Fetch a single Amazon search results page, with its page number and the last known page."),
			mcp.WithNumber("page",
				mcp.Required(),
				mcp.Description("1-based results page"),
			),
		)...,
	)
	s.AddTool(pageTool, handleSearchPage(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

// filterOptions are the tool parameters that map onto a search filter.
func filterOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("term",
			mcp.Required(),
			mcp.Description("Search keywords"),
		),
		mcp.WithNumber("high_price",
			mcp.Description("Upper price bound"),
		),
		mcp.WithNumber("low_price",
			mcp.Description("Lower price bound"),
		),
		mcp.WithString("seller",
			mcp.Description("Merchant id to restrict results to, e.g. ATVPDKIKX0DER for Amazon itself"),
		),
		mcp.WithString("shipper",
			mcp.Description("Fulfilment id to restrict results to; ignored when seller is set"),
		),
	}
}

func filterFromRequest(request mcp.CallToolRequest) (models.SearchFilter, error) {
	term, err := request.RequireString("term")
	if err != nil {
		return models.SearchFilter{}, err
	}
	f := models.SearchFilter{
		Term:    term,
		Seller:  request.GetString("seller", ""),
		Shipper: request.GetString("shipper", ""),
	}
	if v := request.GetFloat("high_price", 0); v > 0 {
		f.HighPrice = &v
	}
	if v := request.GetFloat("low_price", 0); v > 0 {
		f.LowPrice = &v
	}
	return f, nil
}

func handleSearch(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter, err := filterFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError("term is required"), nil
		}
		payload := models.SearchJobRequest{SearchRequest: models.SearchRequest{
			SearchFilter: filter,
			MaxPages:     request.GetInt("max_pages", 0),
		}}
		if dedupe := request.GetBool("dedupe", false); dedupe {
			payload.Dedupe = &dedupe
		}

		// Full crawls run as jobs and are polled to completion.
		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/search/jobs", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search request failed: %v", err)), nil
		}
		var job models.SearchJobResponse
		if err := json.Unmarshal(respBody, &job); err != nil || job.ID == "" {
			return mcp.NewToolResultError(apiError(respBody, "search request rejected")), nil
		}

		pollCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()
		statusBody, err := pollJobCompletion(pollCtx, client, apiURL, apiKey, "/api/v1/search/jobs/"+job.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling search %s failed: %v", job.ID, err)), nil
		}

		var status models.SearchJobStatusResponse
		if err := json.Unmarshal(statusBody, &status); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse search status: %v", err)), nil
		}
		if status.Status != models.JobCompleted {
			msg := "search failed"
			if status.Error != nil {
				msg = formatError(status.Error)
			}
			return mcp.NewToolResultError(msg), nil
		}

		header := fmt.Sprintf("Search: %s\nPages: %d\nResults: %d\n\n", filter.Term, status.PagesCompleted, status.Total)
		return mcp.NewToolResultText(header + formatItems(status.Items)), nil
	}
}

func handleSearchPage(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter, err := filterFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError("term is required"), nil
		}
		page := request.GetInt("page", 0)
		if page < 1 {
			return mcp.NewToolResultError("page must be at least 1"), nil
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/search/page",
			models.SearchPageRequest{SearchFilter: filter, Page: page})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("page request failed: %v", err)), nil
		}

		var resp models.SearchPageResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse page response: %v", err)), nil
		}
		if !resp.Success || resp.Result == nil {
			msg := "page search failed"
			if resp.Error != nil {
				msg = formatError(resp.Error)
			}
			return mcp.NewToolResultError(msg), nil
		}

		last := "none"
		if resp.Result.MaxPage != nil {
			last = fmt.Sprint(*resp.Result.MaxPage)
		}
		header := fmt.Sprintf("Search: %s\nPage: %d\nLast page: %s\nResults: %d\n\n",
			filter.Term, resp.Result.CurrentPage, last, len(resp.Result.Items))
		return mcp.NewToolResultText(header + formatItems(resp.Result.Items)), nil
	}
}

func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJobCompletion polls a job endpoint until status is no longer "processing" or context is cancelled.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, endpoint string) ([]byte, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("create poll request: %w", err)
			}
			req.Header.Set("X-API-Key", apiKey)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read poll response: %w", err)
			}

			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Status != models.JobProcessing {
				return body, nil
			}
		}
	}
}

func apiError(body []byte, fallback string) string {
	var resp models.ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != nil {
		return formatError(resp.Error)
	}
	return fallback
}

func formatError(e *models.ErrorDetail) string {
	if e.Page > 0 {
		return fmt.Sprintf("[%s] page %d: %s", e.Code, e.Page, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// formatItems renders one block per result.
func formatItems(items []models.ResultItem) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it.Name)
		if it.Price != "" {
			fmt.Fprintf(&b, "   Price: %s\n", it.Price)
		}
		if it.AltPrice != nil {
			fmt.Fprintf(&b, "   Other offers from: %s\n", *it.AltPrice)
		}
		if it.Coupon != nil {
			fmt.Fprintf(&b, "   Coupon: %s\n", *it.Coupon)
		}
		fmt.Fprintf(&b, "   Link: %s\n   Image: %s\n", it.Link, it.Image)
	}
	return b.String()
}
