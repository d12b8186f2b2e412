package mapgen

import (
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "mapgen")
