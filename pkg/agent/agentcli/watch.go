package agentcli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/neuroplastio/neio-pad/padapi"
	"github.com/spf13/cobra"
)

type watchLine struct {
	Kind padapi.NotificationKind `json:"kind"`
	Data padapi.Notification     `json:"data"`
}

// notificationWriter writes one JSON line per notification. Controllers poll on their
// own goroutines, so writes are serialized.
type notificationWriter struct {
	mu         sync.Mutex
	enc        *json.Encoder
	controller int
	kinds      map[padapi.NotificationKind]bool
}

func newNotificationWriter(out io.Writer, controller int, kinds []padapi.NotificationKind) *notificationWriter {
	w := &notificationWriter{
		enc:        json.NewEncoder(out),
		controller: controller,
	}
	if len(kinds) > 0 {
		w.kinds = make(map[padapi.NotificationKind]bool, len(kinds))
		for _, k := range kinds {
			w.kinds[k] = true
		}
	}
	return w
}

func (w *notificationWriter) handle(n padapi.Notification) {
	if w.kinds != nil && !w.kinds[n.Kind()] {
		return
	}
	if w.controller >= 0 && controllerOf(n) != w.controller {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(watchLine{Kind: n.Kind(), Data: n})
}

func controllerOf(n padapi.Notification) int {
	switch n := n.(type) {
	case padapi.ButtonChanged:
		return n.Controller
	case padapi.AxisChanged:
		return n.Controller
	case padapi.TriggerChanged:
		return n.Controller
	case padapi.AbsolutePositionChanged:
		return n.Controller
	case padapi.PollCompleted:
		return n.Controller
	}
	return -1
}

func parseKinds(names []string) ([]padapi.NotificationKind, error) {
	kinds := make([]padapi.NotificationKind, 0, len(names))
	for _, name := range names {
		kind, ok := padapi.ParseNotificationKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown notification kind %q", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func NewWatch(agent agentProvider) *cobra.Command {
	var kindNames []string
	cmd := &cobra.Command{
		Use:   "watch [index]",
		Short: "Stream controller notifications",
		Long: `Run the agent and print every notification as a JSON line. With an index only
that controller's notifications are printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			controller := -1
			if len(args) == 1 {
				index, err := strconv.Atoi(args[0])
				if err != nil || index < 0 {
					return fmt.Errorf("invalid controller index %q", args[0])
				}
				controller = index
			}
			kinds, err := parseKinds(kindNames)
			if err != nil {
				return err
			}
			w := newNotificationWriter(cmd.OutOrStdout(), controller, kinds)
			pads := agent().Pads()
			sub := pads.Subscribe(w.handle)
			defer pads.Unsubscribe(sub)
			return agent().Run(cmd.Context())
		},
	}
	cmd.Flags().StringSliceVar(&kindNames, "kinds", nil, "notification kinds to print (button, axis, trigger, position, poll)")
	return cmd
}
