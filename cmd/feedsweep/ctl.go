package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hazyhaar/feedsweep/sweeper/message"
)

var errUsage = errors.New("ctl: usage: start | stop | filter <keyword> | nofilter | delay <s> | threshold <n> | toggle <key> on|off | pacing on|off | raw '<json>'")

// parseCtl turns ctl arguments into a command.
func parseCtl(args []string) (message.Command, error) {
	if len(args) == 0 {
		return nil, errUsage
	}
	rest := args[1:]
	switch args[0] {
	case "start":
		return message.Start{}, nil
	case "stop":
		return message.Stop{}, nil
	case "filter":
		kw := strings.Join(rest, " ")
		if strings.TrimSpace(kw) == "" {
			return nil, fmt.Errorf("ctl: filter needs a keyword")
		}
		return message.SetFilter{Enabled: true, Keyword: kw}, nil
	case "nofilter":
		return message.SetFilter{}, nil
	case "delay", "threshold":
		if len(rest) != 1 {
			return nil, errUsage
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			return nil, fmt.Errorf("ctl: %s: %w", args[0], err)
		}
		if args[0] == "delay" {
			return message.SetScrollDelay{Value: n}, nil
		}
		return message.SetRefreshThreshold{Value: n}, nil
	case "toggle":
		if len(rest) != 2 {
			return nil, errUsage
		}
		on, err := onOff(rest[1])
		if err != nil {
			return nil, err
		}
		return message.Decode(fmt.Appendf(nil, `{"type":"SET_TOGGLE","key":%q,"value":%t}`, rest[0], on))
	case "pacing":
		if len(rest) != 1 {
			return nil, errUsage
		}
		on, err := onOff(rest[0])
		if err != nil {
			return nil, err
		}
		return message.SetHumanPacing{Enabled: on}, nil
	case "raw":
		if len(rest) != 1 {
			return nil, errUsage
		}
		return message.Decode([]byte(rest[0]))
	}
	return nil, errUsage
}

func onOff(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("ctl: want on or off, got %q", s)
}
