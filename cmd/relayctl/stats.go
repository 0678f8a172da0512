package main

import (
	httpserver "chat-relay/infrastructure/http/server"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

func fetchStats(ctx context.Context, baseURL string) (httpserver.StatsResponse, error) {
	var stats httpserver.StatsResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/stats", nil)
	if err != nil {
		return stats, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return stats, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("relay answered %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&stats)
	return stats, err
}

func renderStats(w io.Writer, stats httpserver.StatsResponse) {
	fmt.Fprintf(w, "Connections: %d\n", stats.Connections)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Room", "Members"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	for _, room := range stats.Rooms {
		table.Append([]string{
			strconv.FormatInt(int64(room.RoomID), 10),
			strconv.Itoa(room.Members),
		})
	}
	table.Render()
}
