package clickhouse

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
)

// ProtocolType is the registry key of this protocol.
const ProtocolType = "clickhouse"

func init() {
	datasource.Register(datasource.ProtocolRegistration{
		Info: datasource.ProtocolInfo{
			Type:        ProtocolType,
			DisplayName: "ClickHouse (ODBC)",
			Description: "Connect to ClickHouse through the ODBC driver",
		},
		Factory: func(gw datasource.Gateway, logger *zap.Logger) datasource.Protocol {
			return NewProtocol(gw, logger)
		},
	})
}
