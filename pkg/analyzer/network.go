package analyzer

import (
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// newHTTPClient returns the download client. With blockPrivate set, every
// connection (redirects included) is checked after DNS resolution.
func newHTTPClient(blockPrivate bool) *http.Client {
	if !blockPrivate {
		return &http.Client{Timeout: 30 * time.Second}
	}

	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil || !isPublicIP(ip) {
				return fmt.Errorf("refusing to connect to non-public address %s", host)
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &http.Client{Timeout: 30 * time.Second, Transport: transport}
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}
