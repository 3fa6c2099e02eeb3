// Package iptables drives the userspace iptables tools. It loads the
// ip_tables kernel module, parses iptables-save files and replays them with
// iptables -N, -P and -A so the kernel validates every restored rule.
package iptables
