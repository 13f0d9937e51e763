package appversion

var FillFromSettings = fillFromSettings
