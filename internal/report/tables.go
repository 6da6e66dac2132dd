package report

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/newhosts/internal/db"
)

// WriteNetworks prints saved networks as a table.
func WriteNetworks(out io.Writer, networks []db.Network) error {
	table := tablewriter.NewWriter(out)
	table.Header("Name", "Start", "End")

	for i := range networks {
		n := &networks[i]
		if err := table.Append([]string{n.Name, n.Start.String(), n.End.String()}); err != nil {
			return err
		}
	}
	return table.Render()
}

// WriteHistory prints recorded scan cycles as a table.
func WriteHistory(out io.Writer, entries []db.HistoryEntry) error {
	table := tablewriter.NewWriter(out)
	table.Header("Timestamp", "Time", "Hosts", "With MAC")

	for i := range entries {
		e := &entries[i]
		if err := table.Append([]string{
			strconv.FormatInt(e.Timestamp, 10),
			time.Unix(e.Timestamp, 0).Format(time.DateTime),
			strconv.Itoa(e.Hosts),
			strconv.Itoa(e.WithMAC),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
