package discovery

import "net"

// Enumerator 本机网络地址枚举策略。
//
// 返回的切片顺序即地址优先级，Builder 取第一个元素作为默认地址；
// 返回空切片表示本机没有可发布的地址，不视为错误。
type Enumerator func() ([]net.IP, error)

// LocalAddresses 默认枚举器：按网卡顺序收集所有已启用、非回环接口上的
// 全局单播地址，IPv4 与 IPv6 均保留，不做额外排序。
//
// 单块网卡的地址读取失败会被跳过，只有接口列表本身获取失败才返回错误。
func LocalAddresses() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			default:
				continue
			}
			if ip == nil || !ip.IsGlobalUnicast() {
				continue
			}
			ips = append(ips, ip)
		}
	}
	return ips, nil
}
