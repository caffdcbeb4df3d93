package commands

import (
	"servicemonitor/internal/gateway"
)

// MonitorCommand /monitor命令定义，guild级注册
func MonitorCommand() gateway.Command {
	return gateway.Command{
		Name:        "monitor",
		Description: "Run a service monitor command",
		Options: []gateway.CommandOption{
			{
				Type:        gateway.OptionTypeSubcommand,
				Name:        "refresh",
				Description: "Refresh monitored servers",
			},
			{
				Type:        gateway.OptionTypeSubcommand,
				Name:        "add",
				Description: "Add server to monitor",
				Options: []gateway.CommandOption{
					{
						Type:        gateway.OptionTypeString,
						Name:        "name",
						Description: "What should the server name be?",
						Required:    true,
						MinLength:   1,
					},
					{
						Type:        gateway.OptionTypeString,
						Name:        "address",
						Description: "Server's IP:Port",
						Required:    true,
						MinLength:   9,
					},
					{
						Type:        gateway.OptionTypeString,
						Name:        "protocol",
						Description: "Server's transport protocol (UDP/TCP)",
						Required:    true,
						Choices: []gateway.CommandChoice{
							{Name: "TCP", Value: "tcp"},
							{Name: "UDP", Value: "udp"},
						},
					},
				},
			},
			{
				Type:        gateway.OptionTypeSubcommand,
				Name:        "remove",
				Description: "Remove monitored server",
				Options: []gateway.CommandOption{
					{
						Type:        gateway.OptionTypeString,
						Name:        "name",
						Description: "What's the name of the server getting 💀'd?",
						Required:    true,
						MinLength:   1,
					},
				},
			},
			{
				Type:        gateway.OptionTypeSubcommand,
				Name:        "wipe",
				Description: "Wipe all server monitor data",
				Options: []gateway.CommandOption{
					{
						Type:        gateway.OptionTypeString,
						Name:        "confirmation",
						Description: "Enter this Discord server's name to confirm.",
						Required:    true,
						MinLength:   1,
					},
				},
			},
			{
				Type:        gateway.OptionTypeSubcommand,
				Name:        "about",
				Description: "About Service Monitor",
			},
		},
	}
}
