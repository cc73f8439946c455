package application

import (
	"strings"

	"storefront/internal/pkg/bootstrap"
)

// ConfigRecipients 从当前配置读取收件人，Nacos 推送变更后立即生效
type ConfigRecipients struct{}

func (ConfigRecipients) Customer(customerID string) string {
	domain := bootstrap.GetCurrentConfig().App.CustomerEmailDomain
	if domain == "" || strings.Contains(customerID, "@") {
		return customerID
	}
	return customerID + "@" + domain
}

func (ConfigRecipients) Admins() []string {
	return bootstrap.GetCurrentConfig().App.AdminEmails
}
