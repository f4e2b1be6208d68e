// internal/service/booking/infrastructure/adapter/provider_discovery.go
package adapter

import (
	"fmt"

	"github.com/wangke168/saas-sub000/internal/pkg/nacos"
)

// NacosEndpoint 通过 Nacos 在每次调用前挑选一个健康的供应商网关实例。
// 发现失败被包装成瞬时的 ProviderError（调用方 call 里兜底），重试即可。
func NacosEndpoint(client *nacos.Client, serviceName string) EndpointResolver {
	return func() (string, error) {
		ip, port, err := client.DiscoverServiceInstance(serviceName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("http://%s:%d", ip, port), nil
	}
}
