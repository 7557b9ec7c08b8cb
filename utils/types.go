package utils

import (
	"go.uber.org/zap"
)

type SignerApp struct {
	Stage       string `json:"stage"`
	RuntimeMode string `json:"runtimeMode"`
	Logger      *zap.Logger
}
