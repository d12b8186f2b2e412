package rl

import "github.com/sirupsen/logrus"

// log 强化学习模块的日志记录器
var log = logrus.WithField("module", "rl")
