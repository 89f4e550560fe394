package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/EternisAI/silo-c2/internal/operator"
)

const notAvailable = "N/A"

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func printAgents(w io.Writer, views []operator.AgentView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "[ERROR] No agents found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT ID\tLAST SEEN\tHOSTNAME\tOS\tSOURCE IP")
	for _, v := range views {
		lastSeen := notAvailable
		if !v.LastSeen.IsZero() {
			lastSeen = v.LastSeen.UTC().Format(time.RFC3339)
		}
		hostname := orNA(v.Hostname)
		if v.MetadataEncrypted && v.Hostname == "" {
			hostname = "<encrypted>"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.AgentID, lastSeen, hostname, orNA(v.OSName), orNA(v.SourceIP))
	}
	_ = tw.Flush()
}

func printResult(w io.Writer, agentID, key, content string) {
	title := "Agent's Result " + agentID
	if key != "" {
		title += " (" + key + ")"
	}
	rule := strings.Repeat("-", len(title))

	fmt.Fprintln(w, title)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, strings.TrimRight(content, "\n"))
	fmt.Fprintln(w, rule)
}
